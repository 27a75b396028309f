package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/blecam/internal/camera"
)

// jpegBytes returns a minimal byte sequence with JPEG SOI/APP0 magic.
func jpegBytes(fill byte) []byte {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	for i := 0; i < 64; i++ {
		data = append(data, fill)
	}
	return append(data, 0xFF, 0xD9)
}

func frame(seq uint64, data []byte) camera.ImageFrame {
	return camera.ImageFrame{Data: data, DeclaredSize: len(data), ChunksReceived: 1, ChunksExpected: 1, Sequence: seq}
}

func TestSaveNamesByPrefixAndSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Dir: dir, Prefix: "cam"})
	require.NoError(t, err)

	data := jpegBytes(0x11)
	path, err := w.Save(frame(7, data))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cam_0007.jpg"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveUnknownContentUsesBin(t *testing.T) {
	w, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	path, err := w.Save(frame(1, []byte{0x13, 0x37, 0x00, 0x42, 0x00, 0x99}))
	require.NoError(t, err)
	assert.Equal(t, "frame_0001.bin", filepath.Base(path))
}

func TestSaveDedupe(t *testing.T) {
	w, err := New(Options{Dir: t.TempDir(), Dedupe: true})
	require.NoError(t, err)

	a := jpegBytes(0x11)
	b := jpegBytes(0x22)

	p1, err := w.Save(frame(1, a))
	require.NoError(t, err)
	assert.NotEmpty(t, p1)

	p2, err := w.Save(frame(2, a))
	require.NoError(t, err)
	assert.Empty(t, p2, "identical consecutive frame is skipped")

	p3, err := w.Save(frame(3, b))
	require.NoError(t, err)
	assert.NotEmpty(t, p3)

	// Only consecutive duplicates are skipped.
	p4, err := w.Save(frame(4, a))
	require.NoError(t, err)
	assert.NotEmpty(t, p4)

	saved, skipped := w.Stats()
	assert.Equal(t, 3, saved)
	assert.Equal(t, 1, skipped)
}

func TestSaveWithoutDedupeKeepsDuplicates(t *testing.T) {
	w, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	data := jpegBytes(0x33)
	for seq := uint64(1); seq <= 2; seq++ {
		path, err := w.Save(frame(seq, data))
		require.NoError(t, err)
		assert.NotEmpty(t, path)
	}
}

func TestSaveEmptyFrame(t *testing.T) {
	w, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = w.Save(frame(1, nil))
	assert.ErrorIs(t, err, ErrEmptyFrame)
	assert.ErrorIs(t, w.OnFrame(frame(1, nil)), ErrEmptyFrame)
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "frames")
	w, err := New(Options{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, w.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
