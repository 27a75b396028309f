package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/blecam/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig  `yaml:"device"`
	Camera   CameraConfig  `yaml:"camera"`
	Output   OutputConfig  `yaml:"output"`
	Audio    AudioConfig   `yaml:"audio"`
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"`
}

// DeviceConfig holds discovery and connection settings.
type DeviceConfig struct {
	// Address is a MAC address on Linux or a CoreBluetooth UUID on macOS.
	// Empty means scan for Names.
	Address        string        `yaml:"address"`
	Names          []string      `yaml:"names"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectMax   int           `yaml:"reconnect_max"` // max backoff in seconds
	CommandDelay   time.Duration `yaml:"command_delay"`
}

// CameraConfig holds reassembly and image settings.
type CameraConfig struct {
	ChunkSize           int           `yaml:"chunk_size"`
	CompletionThreshold float64       `yaml:"completion_threshold"`
	CaptureTimeout      time.Duration `yaml:"capture_timeout"`
	Quality             int           `yaml:"quality"`    // 4..63, lower is better
	Resolution          int           `yaml:"resolution"` // SIZE code 0..13
	Interval            time.Duration `yaml:"interval"`
	DeliveryQueue       int           `yaml:"delivery_queue"`
}

// OutputConfig holds settings for saving frames to disk.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	Dedupe bool   `yaml:"dedupe"`
}

// AudioConfig holds audio recording settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
}

// MetricsConfig holds the Prometheus exporter settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the exporter
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blecam")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Names:          []string{"OpenSidekick", "ESP32S3-Camera"},
			ScanTimeout:    10 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ReconnectMax:   30,
			CommandDelay:   20 * time.Millisecond,
		},
		Camera: CameraConfig{
			ChunkSize:           protocol.DefaultChunkSize,
			CompletionThreshold: 0.95,
			CaptureTimeout:      10 * time.Second,
			Quality:             25,
			Resolution:          int(protocol.ResQVGA),
			Interval:            500 * time.Millisecond,
			DeliveryQueue:       8,
		},
		Output: OutputConfig{
			Dir:    expandTilde("~/Pictures/blecam"),
			Prefix: "frame",
			Dedupe: true,
		},
		Audio: AudioConfig{
			SampleRate: 8000,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in output.dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Output.Dir = expandTilde(cfg.Output.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0")
	}
	if c.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be > 0")
	}
	if c.Device.ReconnectMax <= 0 {
		return fmt.Errorf("device.reconnect_max must be > 0")
	}
	if c.Device.CommandDelay < 0 {
		return fmt.Errorf("device.command_delay must not be negative")
	}
	if c.Device.Address == "" && len(c.Device.Names) == 0 {
		return fmt.Errorf("device.names must not be empty when device.address is unset")
	}

	if c.Camera.ChunkSize <= 0 {
		return fmt.Errorf("camera.chunk_size must be > 0")
	}
	if c.Camera.CompletionThreshold <= 0 || c.Camera.CompletionThreshold > 1 {
		return fmt.Errorf("camera.completion_threshold must be in (0, 1], got %v", c.Camera.CompletionThreshold)
	}
	if c.Camera.CaptureTimeout <= 0 {
		return fmt.Errorf("camera.capture_timeout must be > 0")
	}
	if c.Camera.Quality < protocol.MinQuality || c.Camera.Quality > protocol.MaxQuality {
		return fmt.Errorf("camera.quality must be %d..%d, got %d", protocol.MinQuality, protocol.MaxQuality, c.Camera.Quality)
	}
	if !protocol.Resolution(c.Camera.Resolution).Valid() {
		return fmt.Errorf("camera.resolution must be a SIZE code 0..%d, got %d", int(protocol.ResUXGA), c.Camera.Resolution)
	}
	if c.Camera.Interval < protocol.MinInterval || c.Camera.Interval > protocol.MaxInterval {
		return fmt.Errorf("camera.interval must be %s..%s, got %s", protocol.MinInterval, protocol.MaxInterval, c.Camera.Interval)
	}
	if c.Camera.DeliveryQueue <= 0 {
		return fmt.Errorf("camera.delivery_queue must be > 0")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level string to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# blecam configuration
#
# device.address: MAC (Linux) or CoreBluetooth UUID (macOS); empty scans for device.names
# camera.quality: JPEG quality 4..63, lower is better
# camera.resolution: SIZE code 0 (96x96) .. 13 (1600x1200); 5 is QVGA
# metrics.listen: e.g. ":9464" to serve /metrics; empty disables the exporter

`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	cfg := Default()
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(cfg.Output.Dir, home) {
		cfg.Output.Dir = "~" + strings.TrimPrefix(cfg.Output.Dir, home)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
