// Package output persists reconstructed frames to disk.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"

	"github.com/chaz8081/blecam/internal/camera"
)

// ErrEmptyFrame is returned when asked to save a frame with no data.
var ErrEmptyFrame = errors.New("output: empty frame")

// Options configures a Writer.
type Options struct {
	Dir    string
	Prefix string
	// Dedupe skips a frame identical to the previously saved one, which
	// happens when a static scene is streamed.
	Dedupe bool
}

// Writer saves frames as <prefix>_<seq:04d><ext>, with the extension taken
// from the detected content type. Safe for concurrent use.
type Writer struct {
	dir    string
	prefix string
	dedupe bool

	mu      sync.Mutex
	last    [blake2b.Size256]byte
	hasLast bool
	saved   int
	skipped int
}

// New creates the output directory if needed and returns a Writer.
func New(opts Options) (*Writer, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("output: directory is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "frame"
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("output: create dir: %w", err)
	}
	return &Writer{dir: opts.Dir, prefix: opts.Prefix, dedupe: opts.Dedupe}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Save writes frame to disk and returns its path. When dedupe is on and
// the frame matches the last one saved it returns "", nil.
func (w *Writer) Save(frame camera.ImageFrame) (string, error) {
	if len(frame.Data) == 0 {
		return "", ErrEmptyFrame
	}

	sum := blake2b.Sum256(frame.Data)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dedupe && w.hasLast && sum == w.last {
		w.skipped++
		slog.Debug("[OUT] skipping duplicate frame", "seq", frame.Sequence)
		return "", nil
	}

	mime := mimetype.Detect(frame.Data)
	ext := mime.Extension()
	if ext == "" {
		ext = ".bin"
	}
	if !mime.Is("image/jpeg") {
		slog.Warn("[OUT] frame is not a JPEG", "seq", frame.Sequence, "mime", mime.String())
	}

	name := fmt.Sprintf("%s_%04d%s", w.prefix, frame.Sequence, ext)
	path := filepath.Join(w.dir, name)
	if err := writeFileAtomic(path, frame.Data); err != nil {
		return "", err
	}

	w.last = sum
	w.hasLast = true
	w.saved++
	slog.Info("[OUT] saved frame", "path", path, "bytes", len(frame.Data),
		"completion", fmt.Sprintf("%.1f%%", frame.CompletionRate()))
	return path, nil
}

// OnFrame implements camera.FrameHandler.
func (w *Writer) OnFrame(frame camera.ImageFrame) error {
	_, err := w.Save(frame)
	return err
}

// Stats returns how many frames were saved and skipped as duplicates.
func (w *Writer) Stats() (saved, skipped int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saved, w.skipped
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place so readers never see a partial image.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("output: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("output: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}

// Compile-time check that Writer can consume a stream.
var _ camera.FrameHandler = (*Writer)(nil)
