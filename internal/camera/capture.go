package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/metrics"
)

// Capture requests a single image and waits for the next frame the
// Assembler finalizes, up to timeout (the configured default when
// timeout <= 0). Any partial transfer is discarded before the request and
// again on timeout. Only one capture may be outstanding at a time.
func (c *Camera) Capture(ctx context.Context, timeout time.Duration) (ImageFrame, error) {
	if timeout <= 0 {
		timeout = c.opts.CaptureTimeout
	}

	ch, err := c.asm.armWaiter()
	if err != nil {
		return ImageFrame{}, err
	}

	start := time.Now()
	if err := c.send(protocol.Capture); err != nil {
		c.asm.disarmWaiter(ch, false)
		metrics.RecordCapture("error", time.Since(start).Seconds())
		return ImageFrame{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-ch:
		elapsed := time.Since(start)
		metrics.RecordCapture("success", elapsed.Seconds())
		slog.Info("[CAM] image captured", "seq", frame.Sequence, "bytes", frame.Size(),
			"completion", fmt.Sprintf("%.1f%%", frame.CompletionRate()), "elapsed", elapsed.Round(time.Millisecond))
		return frame, nil

	case <-timer.C:
		c.asm.disarmWaiter(ch, true)
		// A frame finalized before the waiter was disarmed still counts.
		select {
		case frame := <-ch:
			metrics.RecordCapture("success", time.Since(start).Seconds())
			return frame, nil
		default:
		}
		metrics.RecordCapture("timeout", time.Since(start).Seconds())
		slog.Warn("[CAM] capture timed out", "timeout", timeout)
		return ImageFrame{}, fmt.Errorf("%w: no image after %s", ErrTimeout, timeout)

	case <-ctx.Done():
		c.asm.disarmWaiter(ch, true)
		metrics.RecordCapture("error", time.Since(start).Seconds())
		return ImageFrame{}, fmt.Errorf("camera: capture: %w", ctx.Err())
	}
}
