package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/blecam/internal/metrics"
)

var (
	// ErrNotConnected is returned by SendCommand while the link is down.
	// Commands are not queued: a stale CAPTURE or QUALITY is worse than none.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ble: client closed")
	// ErrNoDevice is returned when a scan finds no camera.
	ErrNoDevice = errors.New("ble: no camera found")
)

// ClientOptions configures the BLE client behavior.
type ClientOptions struct {
	ConnectTimeout time.Duration // per connection attempt
	ReconnectMax   int           // max reconnect backoff in seconds
	CommandDelay   time.Duration // minimum spacing between control writes
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ConnectTimeout: 10 * time.Second,
		ReconnectMax:   30,
		CommandDelay:   20 * time.Millisecond,
	}
}

// Handlers receive camera notifications. Any may be nil. Handlers run on
// the BLE stack's callback goroutine and must not block.
type Handlers struct {
	Image     func(data []byte)
	Frame     func(data []byte)
	Status    func(data []byte)
	Audio     func(data []byte)
	Connected func(connected bool)
}

// Client manages the BLE connection to an OpenSidekick camera.
type Client struct {
	adapter Adapter
	address string
	opts    ClientOptions

	mu        sync.Mutex
	conn      Connection
	control   Characteristic
	connected bool
	closed    bool
	handlers  Handlers

	// writeMu serializes control writes and guards lastWrite.
	writeMu   sync.Mutex
	lastWrite time.Time

	reconnecting atomic.Bool
	done         chan struct{}
	closeOnce    sync.Once
}

// NewClient creates a BLE client for the camera at address.
func NewClient(adapter Adapter, address string, opts ClientOptions) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("ble: device address is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	if opts.CommandDelay < 0 {
		opts.CommandDelay = 0
	}
	return &Client{
		adapter: adapter,
		address: address,
		opts:    opts,
		done:    make(chan struct{}),
	}, nil
}

// Address returns the device address the client connects to.
func (c *Client) Address() string {
	return c.address
}

// SetHandlers installs notification handlers. It may be called at any time;
// subscriptions look handlers up on every notification.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// IsConnected reports whether the control characteristic is usable.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendCommand writes a text command to the control characteristic. Writes
// are serialized and spaced at least CommandDelay apart. Safe for
// concurrent use.
func (c *Client) SendCommand(cmd string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed, connected, control := c.closed, c.connected, c.control
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !connected {
		return ErrNotConnected
	}

	if wait := c.opts.CommandDelay - time.Since(c.lastWrite); wait > 0 {
		time.Sleep(wait)
	}
	err := control.Write([]byte(cmd))
	c.lastWrite = time.Now()
	if err != nil {
		return fmt.Errorf("ble: write command %q: %w", cmd, err)
	}
	return nil
}

// Connect enables the adapter and establishes the initial connection.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	if err := c.dial(ctx); err != nil {
		return err
	}
	slog.Info("[BLE] connected", "address", c.address)
	return nil
}

// dial connects once, discovers the camera's characteristics and subscribes
// to notifications.
func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.adapter.Connect(ctx, c.address)
	if err != nil {
		return fmt.Errorf("ble: connect to %s: %w", c.address, err)
	}
	if err := c.setConnected(conn); err != nil {
		_ = conn.Disconnect()
		return err
	}

	conn.OnDisconnect(func() {
		c.handleDisconnect(conn)
	})

	c.notifyConnected(true)
	return nil
}

// setConnected discovers characteristics on conn and marks the client
// connected. Control, status, image and frame are required; audio is not
// present on every firmware build.
func (c *Client) setConnected(conn Connection) error {
	control, err := discover(conn, ControlCharUUID)
	if err != nil {
		return fmt.Errorf("ble: discover control characteristic: %w", err)
	}

	subs := []struct {
		uuid     string
		name     string
		required bool
		handler  func() func([]byte)
	}{
		{StatusCharUUID, "status", true, func() func([]byte) { return c.currentHandlers().Status }},
		{ImageCharUUID, "image", true, func() func([]byte) { return c.currentHandlers().Image }},
		{FrameCharUUID, "frame", true, func() func([]byte) { return c.currentHandlers().Frame }},
		{AudioCharUUID, "audio", false, func() func([]byte) { return c.currentHandlers().Audio }},
	}
	for _, s := range subs {
		char, err := discover(conn, s.uuid)
		if err != nil {
			if s.required {
				return fmt.Errorf("ble: discover %s characteristic: %w", s.name, err)
			}
			slog.Debug("[BLE] optional characteristic missing", "name", s.name, "error", err)
			continue
		}
		lookup := s.handler
		if err := char.Subscribe(func(data []byte) {
			if h := lookup(); h != nil {
				h(data)
			}
		}); err != nil {
			return fmt.Errorf("ble: subscribe to %s notifications: %w", s.name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.conn = conn
	c.control = control
	c.connected = true
	return nil
}

// discover tries each service UUID alias in turn.
func discover(conn Connection, charUUID string) (Characteristic, error) {
	var errs []error
	for _, svc := range ServiceUUIDs {
		char, err := conn.DiscoverCharacteristic(svc, charUUID)
		if err == nil {
			return char, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func (c *Client) currentHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// setDisconnected marks the client as disconnected.
func (c *Client) setDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.conn = nil
	c.control = nil
}

func (c *Client) notifyConnected(up bool) {
	metrics.SetConnected(up)
	if h := c.currentHandlers().Connected; h != nil {
		h(up)
	}
}

// handleDisconnect reacts to a dropped link on conn. Stale callbacks from a
// connection that has already been replaced are ignored.
func (c *Client) handleDisconnect(conn Connection) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	closed := c.closed
	c.mu.Unlock()

	c.setDisconnected()
	c.notifyConnected(false)
	if closed {
		return
	}

	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	slog.Warn("[BLE] disconnected, reconnecting...", "address", c.address)
	go c.reconnectLoop()
}

// Close disconnects and stops any reconnection attempts.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	c.closed = true
	c.connected = false
	c.conn = nil
	c.control = nil
	c.mu.Unlock()

	if wasConnected {
		metrics.SetConnected(false)
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			return fmt.Errorf("ble: disconnect: %w", err)
		}
	}
	return nil
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt >= 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}

// reconnectLoop attempts to reconnect with exponential backoff until it
// succeeds or the client is closed.
func (c *Client) reconnectLoop() {
	for {
		c.reconnect()
		c.reconnecting.Store(false)

		// A drop that raced with the successful dial found the guard set.
		c.mu.Lock()
		retry := !c.connected && !c.closed
		c.mu.Unlock()
		if !retry || !c.reconnecting.CompareAndSwap(false, true) {
			return
		}
	}
}

func (c *Client) reconnect() {
	for attempt := 0; ; attempt++ {
		// On the first attempt, try immediately; subsequent attempts use backoff.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.opts.ReconnectMax)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			select {
			case <-c.done:
				return
			case <-time.After(delay):
			}
		}

		select {
		case <-c.done:
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := c.dial(ctx)
		cancel()
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			slog.Warn("[BLE] reconnect failed", "error", err, "attempt", attempt+1)
			continue
		}

		metrics.RecordReconnect()
		slog.Info("[BLE] reconnected", "address", c.address, "attempts", attempt+1)
		return
	}
}
