package protocol

import (
	"fmt"
	"time"
)

// Control characteristic commands. Parameterised commands are built by the
// helpers below.
const (
	Capture     = "CAPTURE"
	StartFrames = "START_FRAMES"
	StopFrames  = "STOP_FRAMES"
	StartAudio  = "START_AUDIO"
	StopAudio   = "STOP_AUDIO"
	Status      = "STATUS"
)

// Limits enforced by the firmware; the host clamps before sending so the
// value it reports matches what the camera applies.
const (
	MinQuality  = 4
	MaxQuality  = 63
	MinInterval = 100 * time.Millisecond
	MaxInterval = 60 * time.Second
)

// ClampQuality limits q to the JPEG quality range the sensor accepts.
// Lower is better quality.
func ClampQuality(q int) int {
	return max(MinQuality, min(MaxQuality, q))
}

// ClampInterval limits d to the frame interval range the firmware accepts.
func ClampInterval(d time.Duration) time.Duration {
	return max(MinInterval, min(MaxInterval, d))
}

// QualityCommand returns "QUALITY:<q>" with q clamped.
func QualityCommand(q int) string {
	return fmt.Sprintf("QUALITY:%d", ClampQuality(q))
}

// IntervalCommand returns "INTERVAL:<seconds>" with three decimal places.
func IntervalCommand(d time.Duration) string {
	return fmt.Sprintf("INTERVAL:%.3f", ClampInterval(d).Seconds())
}

// SizeCommand returns "SIZE:<code>". It fails for codes the firmware ignores.
func SizeCommand(r Resolution) (string, error) {
	if !r.Valid() {
		return "", fmt.Errorf("protocol: unknown resolution code %d", int(r))
	}
	return fmt.Sprintf("SIZE:%d", int(r)), nil
}
