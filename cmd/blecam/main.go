// Command blecam drives an OpenSidekick BLE camera: discovery, one-shot
// capture, continuous streaming to disk, status queries and audio recording.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	address    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "blecam",
		Short:         "Capture and stream JPEG images from an OpenSidekick BLE camera",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "path to config file (default: ~/.config/blecam/config.yaml)")
	root.PersistentFlags().StringVar(&gf.address, "address", "", "device address; overrides device.address and skips scanning")
	root.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "debug, info, warn or error; overrides log_level")

	root.AddCommand(
		newScanCmd(&gf),
		newCaptureCmd(&gf),
		newStreamCmd(&gf),
		newStatusCmd(&gf),
		newAudioCmd(&gf),
		newConfigCmd(),
	)
	return root
}

// setup loads and validates the config, applies flag overrides and
// installs the slog handler.
func setup(gf *globalFlags) (*config.Config, error) {
	cfg, err := loadConfig(gf.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if gf.address != "" {
		cfg.Device.Address = gf.address
	}
	if gf.logLevel != "" {
		cfg.LogLevel = gf.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	// No config file, use defaults
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, mode string) {
	device := cfg.Device.Address
	if device == "" {
		device = "scan for " + strings.Join(cfg.Device.Names, ", ")
	}
	fmt.Fprintf(os.Stderr, "=== blecam %s ===\n", mode)
	fmt.Fprintf(os.Stderr, "  Device:     %s\n", device)
	fmt.Fprintf(os.Stderr, "  Resolution: %s\n", protocol.Resolution(cfg.Camera.Resolution))
	fmt.Fprintf(os.Stderr, "  Quality:    %d\n", cfg.Camera.Quality)
	fmt.Fprintf(os.Stderr, "  Interval:   %s\n", cfg.Camera.Interval)
	fmt.Fprintf(os.Stderr, "  Output:     %s\n", cfg.Output.Dir)
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(os.Stderr, "  Metrics:    %s\n", cfg.Metrics.Listen)
	}
	fmt.Fprintln(os.Stderr, strings.Repeat("=", len(mode)+14))
}
