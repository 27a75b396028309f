package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
)

// OnStatus registers fn to receive every status report. Pass nil to clear.
func (c *Camera) OnStatus(fn func(protocol.DeviceStatus)) {
	c.statusMu.Lock()
	c.onStatus = fn
	c.statusMu.Unlock()
}

// HandleStatus feeds a notification from the status characteristic.
// Undecodable reports are logged and ignored.
func (c *Camera) HandleStatus(data []byte) {
	st, err := protocol.ParseStatus(data)
	if err != nil {
		slog.Debug("[CAM] ignoring status notification", "error", err, "len", len(data))
		return
	}

	c.statusMu.Lock()
	waiters := c.statusWaiters
	c.statusWaiters = nil
	fn := c.onStatus
	c.statusMu.Unlock()

	for _, w := range waiters {
		select {
		case w <- st:
		default:
		}
	}
	if fn != nil {
		fn(st)
	}
}

// RequestStatus sends STATUS and waits for the next status report.
func (c *Camera) RequestStatus(ctx context.Context, timeout time.Duration) (protocol.DeviceStatus, error) {
	w := make(chan protocol.DeviceStatus, 1)
	c.statusMu.Lock()
	c.statusWaiters = append(c.statusWaiters, w)
	c.statusMu.Unlock()

	if err := c.send(protocol.Status); err != nil {
		c.removeStatusWaiter(w)
		return protocol.DeviceStatus{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case st := <-w:
		return st, nil
	case <-timer.C:
		c.removeStatusWaiter(w)
		return protocol.DeviceStatus{}, fmt.Errorf("%w: no status after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		c.removeStatusWaiter(w)
		return protocol.DeviceStatus{}, fmt.Errorf("camera: status: %w", ctx.Err())
	}
}

func (c *Camera) removeStatusWaiter(w chan protocol.DeviceStatus) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	for i, x := range c.statusWaiters {
		if x == w {
			c.statusWaiters = append(c.statusWaiters[:i], c.statusWaiters[i+1:]...)
			return
		}
	}
}
