// Package audio records the camera's µ-law microphone stream and writes it
// out as 16-bit PCM WAV.
package audio

import (
	"fmt"
	"io"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chaz8081/blecam/internal/metrics"
)

// DefaultSampleRate is the rate the firmware samples its microphone at.
// Each notification carries 160 samples (20ms).
const DefaultSampleRate = 8000

// Recorder accumulates decoded samples from audio notifications between
// Start and Stop. Safe for concurrent use.
type Recorder struct {
	sampleRate uint32

	mu        sync.Mutex
	buf       []int16
	recording bool
}

// NewRecorder creates a recorder for a stream at sampleRate Hz.
func NewRecorder(sampleRate uint32) *Recorder {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	return &Recorder{sampleRate: sampleRate}
}

// SampleRate returns the stream's sample rate in Hz.
func (r *Recorder) SampleRate() uint32 {
	return r.sampleRate
}

// Start begins accumulating samples.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("already recording")
	}
	r.buf = r.buf[:0] // reset buffer but keep capacity
	r.recording = true
	return nil
}

// HandlePacket decodes one µ-law notification. Packets arriving while not
// recording are ignored.
func (r *Recorder) HandlePacket(data []byte) {
	metrics.RecordPacket("audio", "ulaw", len(data))

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	for _, b := range data {
		r.buf = append(r.buf, DecodeULaw(b))
	}
}

// Stop ends recording and returns the recorded samples.
func (r *Recorder) Stop() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}
	r.recording = false

	// Return a copy of the buffer
	result := make([]int16, len(r.buf))
	copy(result, r.buf)

	return result
}

// IsRecording returns whether the recorder is currently accumulating samples.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// WriteWAV encodes samples as a mono 16-bit PCM WAV file.
func WriteWAV(w io.WriteSeeker, samples []int16, sampleRate uint32) error {
	if sampleRate == 0 {
		return fmt.Errorf("audio: sample rate must be > 0")
	}

	enc := wav.NewEncoder(w, int(sampleRate), 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}
