package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is a camera frame size code as accepted by the SIZE command.
type Resolution int

const (
	Res96x96 Resolution = iota
	ResQQVGA
	ResQCIF
	ResHQVGA
	Res240x240
	ResQVGA
	ResCIF
	ResHVGA
	ResVGA
	ResSVGA
	ResXGA
	ResHD
	ResSXGA
	ResUXGA
)

type resolutionInfo struct {
	name          string
	width, height int
}

var resolutions = [...]resolutionInfo{
	Res96x96:   {"96X96", 96, 96},
	ResQQVGA:   {"QQVGA", 160, 120},
	ResQCIF:    {"QCIF", 176, 144},
	ResHQVGA:   {"HQVGA", 240, 176},
	Res240x240: {"240X240", 240, 240},
	ResQVGA:    {"QVGA", 320, 240},
	ResCIF:     {"CIF", 400, 296},
	ResHVGA:    {"HVGA", 480, 320},
	ResVGA:     {"VGA", 640, 480},
	ResSVGA:    {"SVGA", 800, 600},
	ResXGA:     {"XGA", 1024, 768},
	ResHD:      {"HD", 1280, 720},
	ResSXGA:    {"SXGA", 1280, 1024},
	ResUXGA:    {"UXGA", 1600, 1200},
}

// Valid reports whether r is a code the firmware understands.
func (r Resolution) Valid() bool {
	return r >= 0 && int(r) < len(resolutions)
}

// Dimensions returns width and height in pixels, or zeros for invalid codes.
func (r Resolution) Dimensions() (int, int) {
	if !r.Valid() {
		return 0, 0
	}
	info := resolutions[r]
	return info.width, info.height
}

func (r Resolution) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
	info := resolutions[r]
	return fmt.Sprintf("%s (%dx%d)", info.name, info.width, info.height)
}

// ParseResolution accepts a numeric code ("8"), a name ("VGA", case
// insensitive) or dimensions ("640x480").
func ParseResolution(s string) (Resolution, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		r := Resolution(n)
		if !r.Valid() {
			return 0, fmt.Errorf("protocol: unknown resolution code %d", n)
		}
		return r, nil
	}
	upper := strings.ToUpper(s)
	for i, info := range resolutions {
		if upper == info.name || upper == fmt.Sprintf("%dX%d", info.width, info.height) {
			return Resolution(i), nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown resolution %q", s)
}
