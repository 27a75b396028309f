package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/metrics"
)

// FrameHandler consumes streamed frames. OnFrame runs on the stream's
// delivery goroutine, never on the packet-handling path; an error or panic
// is logged and counted and the stream carries on.
type FrameHandler interface {
	OnFrame(frame ImageFrame) error
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(frame ImageFrame) error

func (f FrameHandlerFunc) OnFrame(frame ImageFrame) error { return f(frame) }

// streamSink owns the bounded queue between the Assembler and a consumer.
// One goroutine drains it, so delivery order equals finalization order.
type streamSink struct {
	queue    chan ImageFrame
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	failures *atomic.Uint64

	mu      sync.Mutex
	handler FrameHandler
}

func newStreamSink(h FrameHandler, size int, failures *atomic.Uint64) *streamSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &streamSink{
		queue:    make(chan ImageFrame, size),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		failures: failures,
		handler:  h,
	}
	go s.run()
	return s
}

// offer enqueues f without blocking. It reports false when the queue is full.
func (s *streamSink) offer(f ImageFrame) bool {
	select {
	case s.queue <- f:
		return true
	default:
		return false
	}
}

func (s *streamSink) setHandler(h FrameHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *streamSink) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.queue:
			// Frames still queued when the stream stops are not delivered.
			if s.ctx.Err() != nil {
				return
			}
			s.deliver(f)
		}
	}
}

func (s *streamSink) deliver(f ImageFrame) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			metrics.RecordDelivery("failed")
			slog.Error("[CAM] stream consumer panicked", "seq", f.Sequence, "panic", r)
		}
	}()
	if err := h.OnFrame(f); err != nil {
		s.failures.Add(1)
		metrics.RecordDelivery("failed")
		slog.Error("[CAM] stream consumer failed", "seq", f.Sequence, "error", err)
		return
	}
	metrics.RecordDelivery("delivered")
}

// stop ends delivery. It does not wait for an in-flight OnFrame call.
func (s *streamSink) stop() {
	s.cancel()
}

// StartStreaming configures cadence and quality, then starts continuous
// frame transfers, delivering every frame finalized from now on to h.
// Calling it while already streaming only reconfigures the camera and
// swaps the handler; counters and the delivery queue are kept.
func (c *Camera) StartStreaming(h FrameHandler, interval time.Duration, quality int) error {
	if h == nil {
		return fmt.Errorf("camera: nil frame handler")
	}

	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if err := c.send(protocol.IntervalCommand(interval)); err != nil {
		return err
	}
	if err := c.send(protocol.QualityCommand(quality)); err != nil {
		return err
	}

	if sink := c.asm.currentSink(); sink != nil {
		sink.setHandler(h)
		slog.Info("[CAM] streaming reconfigured",
			"interval", protocol.ClampInterval(interval), "quality", protocol.ClampQuality(quality))
		return nil
	}

	sink := newStreamSink(h, c.opts.DeliveryQueue, &c.asm.consumerFailures)
	c.asm.swapSink(sink)
	if err := c.send(protocol.StartFrames); err != nil {
		c.asm.swapSink(nil)
		sink.stop()
		return err
	}

	slog.Info("[CAM] streaming started",
		"interval", protocol.ClampInterval(interval), "quality", protocol.ClampQuality(quality))
	return nil
}

// StopStreaming detaches the consumer and tells the camera to stop sending
// frames. A frame that completes concurrently with the call may still be
// delivered; none are delivered for transfers completing after it returns.
func (c *Camera) StopStreaming() error {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if sink := c.asm.swapSink(nil); sink != nil {
		sink.stop()
		slog.Info("[CAM] streaming stopped")
	}
	return c.send(protocol.StopFrames)
}

// IsStreaming reports whether a consumer is registered.
func (c *Camera) IsStreaming() bool {
	return c.asm.currentSink() != nil
}
