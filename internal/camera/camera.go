// Package camera reconstructs JPEG images streamed by an OpenSidekick camera
// over BLE notifications and drives its capture and streaming modes.
//
// A Camera owns one Assembler, which consumes packets from both the image
// and frame sub-channels, and one Tracker. The transport is abstracted by
// Commander for outgoing text commands; incoming notifications are fed to
// HandleImagePacket, HandleFramePacket and HandleStatus.
package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/metrics"
)

var (
	// ErrTimeout is returned when no frame or status arrives in time.
	ErrTimeout = errors.New("camera: timed out")
	// ErrCaptureInProgress is returned by Capture while another capture waits.
	ErrCaptureInProgress = errors.New("camera: capture already in progress")
	// ErrCommandSend wraps transport failures writing a control command.
	ErrCommandSend = errors.New("camera: command send failed")
	// ErrInvalidResolution is returned for SIZE codes the firmware ignores.
	ErrInvalidResolution = errors.New("camera: invalid resolution")
)

// Commander sends a text command to the camera's control characteristic.
type Commander interface {
	SendCommand(cmd string) error
}

// Options configures a Camera.
type Options struct {
	Assembler      AssemblerOptions
	CaptureTimeout time.Duration // used when Capture is called with timeout <= 0
	DeliveryQueue  int           // streaming frames buffered ahead of the consumer
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Assembler:      DefaultAssemblerOptions(),
		CaptureTimeout: 10 * time.Second,
		DeliveryQueue:  8,
	}
}

// Settings are the image parameters the host pushes to the camera.
type Settings struct {
	Quality    int
	Resolution protocol.Resolution
	Interval   time.Duration
}

// Camera is the host-side session state for one camera.
type Camera struct {
	cmd     Commander
	opts    Options
	tracker *Tracker
	asm     *Assembler

	streamMu sync.Mutex

	statusMu      sync.Mutex
	statusWaiters []chan protocol.DeviceStatus
	onStatus      func(protocol.DeviceStatus)
}

// New creates a Camera that sends commands through cmd.
func New(cmd Commander, opts Options) *Camera {
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 10 * time.Second
	}
	if opts.DeliveryQueue <= 0 {
		opts.DeliveryQueue = 8
	}
	tracker := NewTracker()
	return &Camera{
		cmd:     cmd,
		opts:    opts,
		tracker: tracker,
		asm:     NewAssembler(opts.Assembler, tracker),
	}
}

// HandleImagePacket feeds a notification from the image characteristic.
func (c *Camera) HandleImagePacket(data []byte) {
	c.asm.HandlePacket(ChannelImage, data)
}

// HandleFramePacket feeds a notification from the frame characteristic.
func (c *Camera) HandleFramePacket(data []byte) {
	c.asm.HandlePacket(ChannelFrame, data)
}

// SetQuality sets JPEG quality, clamped to 4..63 (lower is better).
func (c *Camera) SetQuality(q int) error {
	return c.send(protocol.QualityCommand(q))
}

// SetResolution sets the sensor frame size.
func (c *Camera) SetResolution(r protocol.Resolution) error {
	cmd, err := protocol.SizeCommand(r)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, int(r))
	}
	return c.send(cmd)
}

// SetInterval sets the streaming frame interval, clamped to 100ms..60s.
func (c *Camera) SetInterval(d time.Duration) error {
	return c.send(protocol.IntervalCommand(d))
}

// Configure pushes resolution, quality and interval in that order.
func (c *Camera) Configure(s Settings) error {
	if err := c.SetResolution(s.Resolution); err != nil {
		return err
	}
	if err := c.SetQuality(s.Quality); err != nil {
		return err
	}
	return c.SetInterval(s.Interval)
}

// StartAudio asks the camera to stream µ-law audio notifications.
func (c *Camera) StartAudio() error {
	return c.send(protocol.StartAudio)
}

// StopAudio stops audio notifications.
func (c *Camera) StopAudio() error {
	return c.send(protocol.StopAudio)
}

// Stats returns the performance counters of the current episode.
func (c *Camera) Stats() Snapshot {
	return c.tracker.Snapshot()
}

// ResetStats starts a new performance episode. Call it when a connection
// comes up.
func (c *Camera) ResetStats() {
	c.tracker.Reset()
}

// Counters returns the assembler's packet classification counters.
func (c *Camera) Counters() Counters {
	return c.asm.Counters()
}

// send writes cmd and wraps transport failures in ErrCommandSend.
func (c *Camera) send(cmd string) error {
	label := cmd
	if i := strings.IndexByte(cmd, ':'); i >= 0 {
		label = cmd[:i]
	}
	if err := c.cmd.SendCommand(cmd); err != nil {
		metrics.RecordCommand(label, "error")
		return fmt.Errorf("%w: %s: %w", ErrCommandSend, cmd, err)
	}
	metrics.RecordCommand(label, "success")
	slog.Debug("[CAM] sent command", "command", cmd)
	return nil
}
