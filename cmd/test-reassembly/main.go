// Command test-reassembly is a manual test for frame reassembly over a
// lossy link. It encodes a synthetic image the way the camera does, drops
// and reorders chunks, feeds the packets to a Camera and reports what came
// out. No hardware is needed.
//
// Usage:
//
//	go run ./cmd/test-reassembly [--size 20000] [--drop 0.03] [--shuffle] [--frames 10]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/camera"
)

// printCommander logs commands instead of writing them to a device.
type printCommander struct{}

func (printCommander) SendCommand(cmd string) error {
	fmt.Printf("  -> %s\n", cmd)
	return nil
}

func main() {
	size := flag.Int("size", 20000, "synthetic image size in bytes")
	drop := flag.Float64("drop", 0.03, "probability of losing each DATA packet")
	shuffle := flag.Bool("shuffle", false, "deliver DATA packets in random order")
	frames := flag.Int("frames", 10, "number of images to send")
	threshold := flag.Float64("threshold", 0.95, "completion threshold")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rng := rand.New(rand.NewSource(*seed))

	cam := camera.New(printCommander{}, camera.Options{
		Assembler: camera.AssemblerOptions{CompletionThreshold: *threshold},
	})

	got := make(chan camera.ImageFrame, *frames)
	err := cam.StartStreaming(camera.FrameHandlerFunc(func(f camera.ImageFrame) error {
		got <- f
		return nil
	}), protocol.MinInterval, 10)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sending %d x %d-byte images (drop=%.1f%%, shuffle=%v, seed=%d)\n",
		*frames, *size, *drop*100, *shuffle, *seed)

	for i := 0; i < *frames; i++ {
		img := make([]byte, *size)
		rng.Read(img)

		packets, err := protocol.EncodeImage(img, protocol.DefaultChunkSize)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		start, data, end := packets[0], packets[1:len(packets)-1], packets[len(packets)-1]
		if *shuffle {
			rng.Shuffle(len(data), func(a, b int) { data[a], data[b] = data[b], data[a] })
		}

		cam.HandleFramePacket(start)
		lost := 0
		for _, p := range data {
			if rng.Float64() < *drop {
				lost++
				continue
			}
			cam.HandleFramePacket(p)
		}
		cam.HandleFramePacket(end)
		fmt.Printf("  image %d: %d chunks, %d lost\n", i+1, len(data), lost)
	}

	// Frames are delivered asynchronously.
	var delivered []camera.ImageFrame
	timeout := time.After(time.Second)
collect:
	for len(delivered) < *frames {
		select {
		case f := <-got:
			delivered = append(delivered, f)
		case <-timeout:
			break collect
		}
	}

	if err := cam.StopStreaming(); err != nil {
		fmt.Printf("Error: %v\n", err)
	}

	fmt.Println()
	for _, f := range delivered {
		fmt.Printf("  frame #%d: %d/%d chunks (%.1f%%), %d bytes\n",
			f.Sequence, f.ChunksReceived, f.ChunksExpected, f.CompletionRate(), f.Size())
	}

	c := cam.Counters()
	fmt.Printf("\nDelivered %d/%d frames\n", len(delivered), *frames)
	fmt.Printf("  packets=%d abandoned=%d duplicates=%d premature=%d out_of_range=%d malformed=%d unknown=%d\n",
		c.Packets, c.Abandoned, c.Duplicates, c.Premature, c.OutOfRange, c.Malformed, c.Unknown)
	fmt.Println("\nDone!")
}
