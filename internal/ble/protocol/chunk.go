package protocol

import (
	"errors"
	"fmt"
	"math"
)

// DefaultChunkSize is the image payload carried per DATA notification
// (517-byte MTU minus ATT and framing overhead). Receivers derive byte
// offsets as chunk_index * chunk size, so this must match the peripheral.
const DefaultChunkSize = 510

var ErrChunkSize = errors.New("protocol: invalid chunk size")

// ChunkCount returns the number of chunks needed to carry size bytes.
func ChunkCount(size, chunkSize int) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return (size + chunkSize - 1) / chunkSize
}

// EncodeImage produces the full notification sequence the peripheral sends
// for one image: START, one DATA per chunk in index order, END.
func EncodeImage(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrChunkSize, chunkSize)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: image of %d bytes exceeds u32 size field", ErrChunkSize, len(data))
	}
	chunks := ChunkCount(len(data), chunkSize)
	if chunks > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d chunks exceeds u16 count field", ErrChunkSize, chunks)
	}

	packets := make([][]byte, 0, chunks+2)
	packets = append(packets, EncodeStart(uint16(chunks), uint32(len(data))))
	for i := 0; i < chunks; i++ {
		off := i * chunkSize
		end := min(off+chunkSize, len(data))
		packets = append(packets, EncodeData(uint16(i), data[off:end]))
	}
	packets = append(packets, EncodeEnd(uint16(chunks)))
	return packets, nil
}
