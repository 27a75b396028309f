package camera

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTrackerRates(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	tr := newTrackerWithClock(clock.now)

	tr.RecordBytes(5000)
	for i := 0; i < 4; i++ {
		tr.RecordFrame()
	}
	clock.advance(2 * time.Second)

	s := tr.Snapshot()
	assert.Equal(t, uint64(4), s.Frames)
	assert.Equal(t, uint64(5000), s.Bytes)
	assert.Equal(t, 2*time.Second, s.Elapsed)
	assert.InDelta(t, 2.0, s.AvgFPS, 1e-9)
	assert.InDelta(t, 20.0, s.AvgKbps, 1e-9)
}

func TestTrackerZeroElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTrackerWithClock(clock.now)
	tr.RecordBytes(100)
	tr.RecordFrame()

	s := tr.Snapshot()
	assert.Zero(t, s.AvgFPS)
	assert.Zero(t, s.AvgKbps)
	assert.Equal(t, uint64(1), s.Frames)
}

func TestTrackerResetStartsNewEpisode(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := newTrackerWithClock(clock.now)
	first := tr.Snapshot().EpisodeID
	tr.RecordBytes(10)
	tr.RecordFrame()

	clock.advance(time.Minute)
	tr.Reset()

	s := tr.Snapshot()
	assert.NotEqual(t, first, s.EpisodeID)
	assert.NotEmpty(t, s.EpisodeID)
	assert.Zero(t, s.Frames)
	assert.Zero(t, s.Bytes)
	assert.True(t, s.LastFrameAt.IsZero())
	assert.Equal(t, clock.now(), s.StartedAt)
}

func TestTrackerIgnoresNonPositiveBytes(t *testing.T) {
	tr := NewTracker()
	tr.RecordBytes(0)
	tr.RecordBytes(-5)
	assert.Zero(t, tr.Snapshot().Bytes)
}
