package protocol

import (
	"testing"
	"time"
)

func TestQualityCommand(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{25, "QUALITY:25"},
		{4, "QUALITY:4"},
		{63, "QUALITY:63"},
		{0, "QUALITY:4"},
		{-10, "QUALITY:4"},
		{100, "QUALITY:63"},
	}
	for _, tt := range tests {
		if got := QualityCommand(tt.in); got != tt.want {
			t.Errorf("QualityCommand(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntervalCommand(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "INTERVAL:0.500"},
		{2 * time.Second, "INTERVAL:2.000"},
		{1250 * time.Millisecond, "INTERVAL:1.250"},
		{10 * time.Millisecond, "INTERVAL:0.100"},      // clamped low
		{5 * time.Minute, "INTERVAL:60.000"},           // clamped high
		{1234567 * time.Microsecond, "INTERVAL:1.235"}, // rounded to 3 places
	}
	for _, tt := range tests {
		if got := IntervalCommand(tt.in); got != tt.want {
			t.Errorf("IntervalCommand(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSizeCommand(t *testing.T) {
	got, err := SizeCommand(ResVGA)
	if err != nil {
		t.Fatalf("SizeCommand(VGA) error = %v", err)
	}
	if got != "SIZE:8" {
		t.Errorf("SizeCommand(VGA) = %q, want %q", got, "SIZE:8")
	}

	if _, err := SizeCommand(Resolution(14)); err == nil {
		t.Error("SizeCommand(14) should fail")
	}
	if _, err := SizeCommand(Resolution(-1)); err == nil {
		t.Error("SizeCommand(-1) should fail")
	}
}
