package protocol

import (
	"bytes"
	"errors"
	"testing"
)

const testChunkSize = 4 // small chunk for easy testing

func TestChunkCount(t *testing.T) {
	tests := []struct {
		size, chunk, want int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{10, 4, 3},
		{1020, 510, 2},
		{1021, 510, 3},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := ChunkCount(tt.size, tt.chunk); got != tt.want {
			t.Errorf("ChunkCount(%d, %d) = %d, want %d", tt.size, tt.chunk, got, tt.want)
		}
	}
}

func TestEncodeImageSequence(t *testing.T) {
	img := []byte("0123456789")
	packets, err := EncodeImage(img, testChunkSize)
	if err != nil {
		t.Fatalf("EncodeImage() error = %v", err)
	}
	// START + 3 DATA + END
	if len(packets) != 5 {
		t.Fatalf("got %d packets, want 5", len(packets))
	}

	start, err := ParsePacket(packets[0])
	if err != nil {
		t.Fatalf("ParsePacket(start) error = %v", err)
	}
	if start.Type != PacketStart || start.ChunkCount != 3 || start.TotalSize != 10 {
		t.Errorf("start = %+v, want chunks=3 size=10", start)
	}

	var reassembled []byte
	for i, raw := range packets[1:4] {
		pkt, err := ParsePacket(raw)
		if err != nil {
			t.Fatalf("ParsePacket(data %d) error = %v", i, err)
		}
		if pkt.Type != PacketData {
			t.Fatalf("packet %d type = %v, want data", i+1, pkt.Type)
		}
		if int(pkt.ChunkIndex) != i {
			t.Errorf("packet %d index = %d, want %d", i+1, pkt.ChunkIndex, i)
		}
		reassembled = append(reassembled, pkt.Payload...)
	}
	if !bytes.Equal(reassembled, img) {
		t.Errorf("reassembled = %q, want %q", reassembled, img)
	}

	if packets[4][0] != byte(PacketEnd) {
		t.Errorf("last packet type = 0x%02x, want END", packets[4][0])
	}
}

func TestEncodeImageLastChunkShort(t *testing.T) {
	packets, err := EncodeImage([]byte("abcdef"), testChunkSize)
	if err != nil {
		t.Fatalf("EncodeImage() error = %v", err)
	}
	last, _ := ParsePacket(packets[len(packets)-2])
	if string(last.Payload) != "ef" {
		t.Errorf("last chunk payload = %q, want %q", last.Payload, "ef")
	}
}

func TestEncodeImageEmpty(t *testing.T) {
	packets, err := EncodeImage(nil, testChunkSize)
	if err != nil {
		t.Fatalf("EncodeImage() error = %v", err)
	}
	// START(0,0) + END
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
}

func TestEncodeImageInvalidChunkSize(t *testing.T) {
	_, err := EncodeImage([]byte("abc"), 0)
	if !errors.Is(err, ErrChunkSize) {
		t.Errorf("EncodeImage(chunk=0) error = %v, want ErrChunkSize", err)
	}
}

func TestEncodeImageTooManyChunks(t *testing.T) {
	_, err := EncodeImage(make([]byte, 70000), 1)
	if !errors.Is(err, ErrChunkSize) {
		t.Errorf("EncodeImage(70000 chunks) error = %v, want ErrChunkSize", err)
	}
}
