package camera

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time view of the performance counters. Rates are
// derived from elapsed time when the snapshot is taken.
type Snapshot struct {
	EpisodeID   string
	Frames      uint64
	Bytes       uint64
	StartedAt   time.Time
	LastFrameAt time.Time
	Elapsed     time.Duration
	AvgFPS      float64
	AvgKbps     float64
}

// Tracker accumulates frame and byte counts for one connection episode.
// Safe for concurrent use.
type Tracker struct {
	now func() time.Time

	mu        sync.Mutex
	episode   string
	start     time.Time
	frames    uint64
	bytes     uint64
	lastFrame time.Time
}

// NewTracker returns a Tracker whose episode starts now.
func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	t := &Tracker{now: now}
	t.Reset()
	return t
}

// Reset zeroes the counters and starts a new episode.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.episode = uuid.NewString()
	t.start = t.now()
	t.frames = 0
	t.bytes = 0
	t.lastFrame = time.Time{}
}

// RecordBytes adds n raw notification bytes.
func (t *Tracker) RecordBytes(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.bytes += uint64(n)
	t.mu.Unlock()
}

// RecordFrame counts one completed frame.
func (t *Tracker) RecordFrame() {
	t.mu.Lock()
	t.frames++
	t.lastFrame = t.now()
	t.mu.Unlock()
}

// Snapshot computes averages over the time since the episode started.
// Averages are 0 when no time has elapsed.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.now().Sub(t.start)
	s := Snapshot{
		EpisodeID:   t.episode,
		Frames:      t.frames,
		Bytes:       t.bytes,
		StartedAt:   t.start,
		LastFrameAt: t.lastFrame,
		Elapsed:     elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.AvgFPS = float64(t.frames) / secs
		s.AvgKbps = float64(t.bytes) * 8 / (secs * 1000)
	}
	return s
}
