// Package protocol implements the wire format of the OpenSidekick camera
// image transfer: framing headers on the image and frame notification
// characteristics, the text commands written to the control characteristic,
// and the JSON status report.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PacketType is the leading byte of every image/frame notification.
type PacketType byte

const (
	PacketStart PacketType = 0x01
	PacketData  PacketType = 0x02
	PacketEnd   PacketType = 0x03
)

func (t PacketType) String() string {
	switch t {
	case PacketStart:
		return "start"
	case PacketData:
		return "data"
	case PacketEnd:
		return "end"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

const (
	// StartHeaderLen is type(1) + chunk_count(2, BE) + total_size(4, LE).
	StartHeaderLen = 7
	// DataHeaderLen is type(1) + chunk_index(2, BE).
	DataHeaderLen = 3
)

var (
	ErrEmptyPacket   = errors.New("protocol: empty packet")
	ErrShortPacket   = errors.New("protocol: packet too short for its type")
	ErrUnknownPacket = errors.New("protocol: unknown packet type")
)

// Packet is a decoded notification. Only the fields relevant to Type are set.
// Payload aliases the input slice passed to ParsePacket.
type Packet struct {
	Type       PacketType
	ChunkCount uint16
	TotalSize  uint32
	ChunkIndex uint16
	Payload    []byte
}

// ParsePacket decodes a raw notification.
//
//	START: [0x01][chunks_hi][chunks_lo][size_b0][size_b1][size_b2][size_b3]
//	DATA:  [0x02][index_hi][index_lo][payload...]
//	END:   [0x03] (trailing bytes ignored)
func ParsePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	pkt := Packet{Type: PacketType(data[0])}
	switch pkt.Type {
	case PacketStart:
		if len(data) < StartHeaderLen {
			return pkt, fmt.Errorf("%w: start header is %d bytes, want %d", ErrShortPacket, len(data), StartHeaderLen)
		}
		pkt.ChunkCount = binary.BigEndian.Uint16(data[1:3])
		pkt.TotalSize = binary.LittleEndian.Uint32(data[3:7])
	case PacketData:
		if len(data) < DataHeaderLen {
			return pkt, fmt.Errorf("%w: data header is %d bytes, want %d", ErrShortPacket, len(data), DataHeaderLen)
		}
		pkt.ChunkIndex = binary.BigEndian.Uint16(data[1:3])
		pkt.Payload = data[DataHeaderLen:]
	case PacketEnd:
	default:
		return pkt, fmt.Errorf("%w: 0x%02x", ErrUnknownPacket, data[0])
	}
	return pkt, nil
}

// EncodeStart builds a START header.
func EncodeStart(chunkCount uint16, totalSize uint32) []byte {
	buf := make([]byte, StartHeaderLen)
	buf[0] = byte(PacketStart)
	binary.BigEndian.PutUint16(buf[1:3], chunkCount)
	binary.LittleEndian.PutUint32(buf[3:7], totalSize)
	return buf
}

// EncodeData builds a DATA packet carrying payload at chunk index.
func EncodeData(index uint16, payload []byte) []byte {
	buf := make([]byte, DataHeaderLen, DataHeaderLen+len(payload))
	buf[0] = byte(PacketData)
	binary.BigEndian.PutUint16(buf[1:3], index)
	return append(buf, payload...)
}

// EncodeEnd builds an END marker. The firmware echoes the chunk count after
// the type byte; receivers do not depend on it.
func EncodeEnd(chunkCount uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = byte(PacketEnd)
	binary.BigEndian.PutUint16(buf[1:3], chunkCount)
	return buf
}
