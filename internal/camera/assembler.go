package camera

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/metrics"
)

// AssemblerOptions configures frame reassembly.
type AssemblerOptions struct {
	// ChunkSize is the peripheral's fixed DATA payload size; offsets are
	// chunk_index * ChunkSize.
	ChunkSize int
	// CompletionThreshold is the fraction of expected chunks that must be
	// present when END arrives for the frame to be finalized.
	CompletionThreshold float64
	// MaxFrameSize bounds the buffer a START header may allocate.
	MaxFrameSize int
}

// DefaultAssemblerOptions returns the values matching the stock firmware.
func DefaultAssemblerOptions() AssemblerOptions {
	return AssemblerOptions{
		ChunkSize:           protocol.DefaultChunkSize,
		CompletionThreshold: 0.95,
		MaxFrameSize:        8 << 20,
	}
}

// Counters records how the Assembler classified traffic. Dropped packets are
// expected on a lossy link; the counters make that visible without turning
// it into errors.
type Counters struct {
	Packets          uint64
	Malformed        uint64 // too short for type, or START larger than MaxFrameSize
	Unknown          uint64 // empty or unrecognised type byte
	Premature        uint64 // DATA/END with no transfer in progress
	OutOfRange       uint64 // chunk would overrun the buffer
	Duplicates       uint64 // chunk index already received
	Abandoned        uint64 // transfer ended below threshold or superseded
	Frames           uint64
	DeliveryDrops    uint64 // streaming queue full
	ConsumerFailures uint64 // consumer returned an error or panicked
}

// transfer is the in-progress reconstruction buffer.
type transfer struct {
	buf       []byte
	expected  int
	received  int
	seen      []bool
	abandoned bool
}

// Assembler turns a serialized stream of notification packets into
// ImageFrames. HandlePacket never blocks: finalized frames are handed off
// with non-blocking channel sends.
type Assembler struct {
	opts    AssemblerOptions
	tracker *Tracker
	now     func() time.Time

	mu       sync.Mutex
	cur      *transfer
	seq      uint64
	waiter   chan ImageFrame
	sink     *streamSink
	counters Counters

	consumerFailures atomic.Uint64
}

// NewAssembler creates an Assembler reporting to tracker. Zero option
// fields take their defaults.
func NewAssembler(opts AssemblerOptions, tracker *Tracker) *Assembler {
	def := DefaultAssemblerOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.CompletionThreshold <= 0 || opts.CompletionThreshold > 1 {
		opts.CompletionThreshold = def.CompletionThreshold
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = def.MaxFrameSize
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Assembler{
		opts:    opts,
		tracker: tracker,
		now:     time.Now,
	}
}

// HandlePacket processes one notification received on ch. Malformed,
// premature and out-of-range packets are counted and dropped.
func (a *Assembler) HandlePacket(ch Channel, data []byte) {
	a.tracker.RecordBytes(len(data))
	metrics.RecordPacket(ch.String(), packetLabel(data), len(data))

	pkt, err := protocol.ParsePacket(data)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.Packets++

	if err != nil {
		if errors.Is(err, protocol.ErrShortPacket) {
			a.drop(metrics.DropMalformed, ch, err)
			a.counters.Malformed++
		} else {
			a.drop(metrics.DropUnknown, ch, err)
			a.counters.Unknown++
		}
		return
	}

	switch pkt.Type {
	case protocol.PacketStart:
		a.begin(ch, pkt)
	case protocol.PacketData:
		a.apply(ch, pkt)
	case protocol.PacketEnd:
		a.end(ch)
	}
}

// Reset discards any in-progress transfer.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discard()
}

// Counters returns a copy of the classification counters.
func (a *Assembler) Counters() Counters {
	a.mu.Lock()
	c := a.counters
	a.mu.Unlock()
	c.ConsumerFailures = a.consumerFailures.Load()
	return c
}

// InProgress reports whether a transfer buffer is active.
func (a *Assembler) InProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur != nil
}

// begin handles START (caller holds mu).
func (a *Assembler) begin(ch Channel, pkt protocol.Packet) {
	if int64(pkt.TotalSize) > int64(a.opts.MaxFrameSize) {
		a.drop(metrics.DropMalformed, ch, nil, "size", pkt.TotalSize)
		a.counters.Malformed++
		return
	}
	a.discard()

	size := int(pkt.TotalSize)
	a.cur = &transfer{
		buf:      make([]byte, size),
		expected: int(pkt.ChunkCount),
		seen:     make([]bool, protocol.ChunkCount(size, a.opts.ChunkSize)),
	}
	slog.Debug("[CAM] transfer started", "channel", ch, "chunks", pkt.ChunkCount, "size", size)
}

// apply handles DATA (caller holds mu).
func (a *Assembler) apply(ch Channel, pkt protocol.Packet) {
	t := a.cur
	if t == nil {
		a.drop(metrics.DropPremature, ch, nil, "index", pkt.ChunkIndex)
		a.counters.Premature++
		return
	}

	idx := int(pkt.ChunkIndex)
	offset := idx * a.opts.ChunkSize
	if idx >= len(t.seen) || offset+len(pkt.Payload) > len(t.buf) {
		a.drop(metrics.DropOutOfRange, ch, nil, "index", idx, "len", len(pkt.Payload), "buffer", len(t.buf))
		a.counters.OutOfRange++
		return
	}
	if t.seen[idx] {
		a.drop(metrics.DropDuplicate, ch, nil, "index", idx)
		a.counters.Duplicates++
		return
	}

	copy(t.buf[offset:], pkt.Payload)
	t.seen[idx] = true
	t.received++

	if t.received == t.expected {
		a.finalize(ch)
	}
}

// end handles END (caller holds mu).
func (a *Assembler) end(ch Channel) {
	t := a.cur
	if t == nil {
		a.drop(metrics.DropPremature, ch, nil)
		a.counters.Premature++
		return
	}
	// An empty buffer never finalizes; an announced count of zero does.
	if len(t.buf) > 0 && t.received >= a.required(t.expected) {
		a.finalize(ch)
		return
	}
	if !t.abandoned {
		t.abandoned = true
		a.counters.Abandoned++
		metrics.RecordAbandoned()
		slog.Debug("[CAM] transfer below completion threshold",
			"channel", ch, "received", t.received, "expected", t.expected)
	}
}

// required returns the minimum chunk count satisfying the threshold.
func (a *Assembler) required(expected int) int {
	// The epsilon keeps 0.95*20 at 19 despite float rounding.
	return int(math.Ceil(a.opts.CompletionThreshold*float64(expected) - 1e-9))
}

// finalize builds the frame, clears the transfer and hands the frame off
// (caller holds mu).
func (a *Assembler) finalize(ch Channel) {
	t := a.cur
	a.cur = nil
	a.seq++

	frame := ImageFrame{
		Data:           t.buf,
		DeclaredSize:   len(t.buf),
		ChunksReceived: t.received,
		ChunksExpected: t.expected,
		Sequence:       a.seq,
		CapturedAt:     a.now(),
		Channel:        ch,
	}
	a.counters.Frames++
	a.tracker.RecordFrame()
	metrics.RecordFrame(ch.String(), frame.Size(), frame.CompletionRate()/100)
	slog.Debug("[CAM] frame complete", "channel", ch, "seq", frame.Sequence,
		"bytes", frame.Size(), "completion", frame.CompletionRate())

	if a.waiter != nil {
		select {
		case a.waiter <- frame:
		default:
		}
		a.waiter = nil
	}
	if a.sink != nil && !a.sink.offer(frame) {
		a.counters.DeliveryDrops++
		metrics.RecordDelivery("dropped")
		slog.Warn("[CAM] stream consumer behind, dropping frame", "seq", frame.Sequence)
	}
}

// discard drops the active transfer, counting it as abandoned if it had
// not already been (caller holds mu).
func (a *Assembler) discard() {
	if a.cur == nil {
		return
	}
	if !a.cur.abandoned {
		a.counters.Abandoned++
		metrics.RecordAbandoned()
	}
	a.cur = nil
}

func (a *Assembler) drop(reason string, ch Channel, err error, attrs ...any) {
	metrics.RecordDrop(reason)
	attrs = append(attrs, "reason", reason, "channel", ch)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.Debug("[CAM] dropped packet", attrs...)
}

// armWaiter resets the buffer and registers a one-shot waiter for the next
// finalized frame.
func (a *Assembler) armWaiter() (chan ImageFrame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.waiter != nil {
		return nil, ErrCaptureInProgress
	}
	a.discard()
	a.waiter = make(chan ImageFrame, 1)
	return a.waiter, nil
}

// disarmWaiter unregisters ch; when reset is set any partial transfer is
// discarded too.
func (a *Assembler) disarmWaiter(ch chan ImageFrame, reset bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.waiter == ch {
		a.waiter = nil
	}
	if reset {
		a.discard()
	}
}

// swapSink installs s as the streaming sink and returns the previous one.
func (a *Assembler) swapSink(s *streamSink) *streamSink {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.sink
	a.sink = s
	return prev
}

func (a *Assembler) currentSink() *streamSink {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sink
}

func packetLabel(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	switch t := protocol.PacketType(data[0]); t {
	case protocol.PacketStart, protocol.PacketData, protocol.PacketEnd:
		return t.String()
	default:
		return "unknown"
	}
}
