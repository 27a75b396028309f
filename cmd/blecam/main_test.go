package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/config"
)

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("camera:\n  quality: 12\n  interval: 2s\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Camera.Quality != 12 {
		t.Errorf("quality = %d, want 12", cfg.Camera.Quality)
	}
	if cfg.Camera.Interval != 2*time.Second {
		t.Errorf("interval = %s, want 2s", cfg.Camera.Interval)
	}
	// Unset fields keep defaults.
	if cfg.Camera.ChunkSize != protocol.DefaultChunkSize {
		t.Errorf("chunk_size = %d, want %d", cfg.Camera.ChunkSize, protocol.DefaultChunkSize)
	}
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestImageFlagsApply(t *testing.T) {
	cfg := config.Default()
	f := imageFlags{quality: 200, resolution: "VGA", outDir: "/tmp/frames"}
	if err := f.apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Camera.Quality != protocol.MaxQuality {
		t.Errorf("quality = %d, want clamped %d", cfg.Camera.Quality, protocol.MaxQuality)
	}
	if cfg.Camera.Resolution != int(protocol.ResVGA) {
		t.Errorf("resolution = %d, want %d", cfg.Camera.Resolution, protocol.ResVGA)
	}
	if cfg.Output.Dir != "/tmp/frames" {
		t.Errorf("output dir = %q", cfg.Output.Dir)
	}

	s := settingsFrom(cfg)
	if s.Resolution != protocol.ResVGA || s.Quality != protocol.MaxQuality {
		t.Errorf("settings = %+v", s)
	}
}

func TestImageFlagsApplyKeepsConfigWhenUnset(t *testing.T) {
	cfg := config.Default()
	want := *cfg
	var f imageFlags
	if err := f.apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Camera != want.Camera || cfg.Output != want.Output {
		t.Error("empty flags changed the config")
	}
}

func TestImageFlagsBadResolution(t *testing.T) {
	f := imageFlags{resolution: "8K"}
	if err := f.apply(config.Default()); err == nil {
		t.Error("expected error for unknown resolution")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"scan", "capture", "stream", "status", "audio", "config"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if f := root.PersistentFlags().Lookup("address"); f == nil {
		t.Error("missing --address flag")
	}
}
