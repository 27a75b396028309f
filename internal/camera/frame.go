package camera

import "time"

// Channel identifies the notification sub-channel a transfer arrived on.
// Both carry the same packet format.
type Channel int

const (
	// ChannelImage carries one-shot CAPTURE transfers.
	ChannelImage Channel = iota
	// ChannelFrame carries START_FRAMES streaming transfers.
	ChannelFrame
)

func (c Channel) String() string {
	switch c {
	case ChannelImage:
		return "image"
	case ChannelFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// ImageFrame is one completed transfer. It is built once by the Assembler
// and never modified afterwards; receivers must treat Data as read-only
// because the same frame may be handed to a capture waiter and a streaming
// consumer.
type ImageFrame struct {
	Data           []byte
	DeclaredSize   int
	ChunksReceived int
	ChunksExpected int
	Sequence       uint64
	CapturedAt     time.Time
	Channel        Channel
}

// CompletionRate returns received/expected chunks as a percentage in
// [0, 100], or 0 when no chunks were expected.
func (f ImageFrame) CompletionRate() float64 {
	if f.ChunksExpected <= 0 {
		return 0
	}
	return float64(f.ChunksReceived) / float64(f.ChunksExpected) * 100
}

// Size returns the number of image bytes.
func (f ImageFrame) Size() int {
	return len(f.Data)
}
