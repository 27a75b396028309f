package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/blecam/internal/audio"
	"github.com/chaz8081/blecam/internal/ble"
	"github.com/chaz8081/blecam/internal/ble/protocol"
	"github.com/chaz8081/blecam/internal/camera"
	"github.com/chaz8081/blecam/internal/config"
	"github.com/chaz8081/blecam/internal/output"
)

// imageFlags override camera settings from the command line.
type imageFlags struct {
	quality    int
	resolution string
	outDir     string
}

func (f *imageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.quality, "quality", 0, "JPEG quality 4..63, lower is better (default from config)")
	cmd.Flags().StringVar(&f.resolution, "resolution", "", "frame size: code 0..13, name (VGA) or WxH (default from config)")
	cmd.Flags().StringVar(&f.outDir, "out", "", "output directory (default from config)")
}

func (f *imageFlags) apply(cfg *config.Config) error {
	if f.quality != 0 {
		cfg.Camera.Quality = protocol.ClampQuality(f.quality)
	}
	if f.resolution != "" {
		r, err := protocol.ParseResolution(f.resolution)
		if err != nil {
			return err
		}
		cfg.Camera.Resolution = int(r)
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	return nil
}

func settingsFrom(cfg *config.Config) camera.Settings {
	return camera.Settings{
		Quality:    cfg.Camera.Quality,
		Resolution: protocol.Resolution(cfg.Camera.Resolution),
		Interval:   cfg.Camera.Interval,
	}
}

func newScanCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List nearby cameras",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			devices, err := ble.ScanForDevices(cmd.Context(), ble.NewBluetoothAdapter(), cfg.Device.Names, cfg.Device.ScanTimeout)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return fmt.Errorf("%w (names: %v)", ble.ErrNoDevice, cfg.Device.Names)
			}
			for _, d := range devices {
				fmt.Printf("%-20s %-40s %4d dBm\n", d.Name, d.Address, d.RSSI)
			}
			return nil
		},
	}
}

func newCaptureCmd(gf *globalFlags) *cobra.Command {
	var (
		img     imageFlags
		count   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one or more still images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			if err := img.apply(cfg); err != nil {
				return err
			}
			printBanner(cfg, "capture")

			writer, err := output.New(output.Options{Dir: cfg.Output.Dir, Prefix: cfg.Output.Prefix})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cfg, ble.Handlers{})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.cam.Configure(settingsFrom(cfg)); err != nil {
				return err
			}

			var failures int
			for i := 0; i < count; i++ {
				frame, err := s.cam.Capture(ctx, timeout)
				if err != nil {
					if ctx.Err() != nil {
						return err
					}
					failures++
					slog.Error("[CAM] capture failed", "attempt", i+1, "error", err)
					continue
				}
				path, err := writer.Save(frame)
				if err != nil {
					return err
				}
				fmt.Println(path)
			}
			s.logStats()
			if failures == count {
				return fmt.Errorf("all %d captures failed", count)
			}
			return nil
		},
	}
	img.register(cmd)
	cmd.Flags().IntVar(&count, "count", 1, "number of images to capture")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-image timeout (default camera.capture_timeout)")
	return cmd
}

func newStreamCmd(gf *globalFlags) *cobra.Command {
	var (
		img      imageFlags
		interval time.Duration
		duration time.Duration
		every    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream frames to disk until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			if err := img.apply(cfg); err != nil {
				return err
			}
			if interval > 0 {
				cfg.Camera.Interval = protocol.ClampInterval(interval)
			}
			printBanner(cfg, "stream")

			writer, err := output.New(output.Options{Dir: cfg.Output.Dir, Prefix: cfg.Output.Prefix, Dedupe: cfg.Output.Dedupe})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			g, ctx := errgroup.WithContext(ctx)
			serveMetrics(ctx, g, cfg.Metrics.Listen)

			g.Go(func() error {
				s, err := openSession(ctx, cfg, ble.Handlers{})
				if err != nil {
					return err
				}
				defer s.Close()

				res := protocol.Resolution(cfg.Camera.Resolution)
				if err := s.cam.SetResolution(res); err != nil {
					return err
				}
				if err := s.cam.StartStreaming(writer, cfg.Camera.Interval, cfg.Camera.Quality); err != nil {
					return err
				}

				ticker := time.NewTicker(every)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						s.logStats()
					case <-ctx.Done():
						if err := s.cam.StopStreaming(); err != nil && !errors.Is(err, ble.ErrNotConnected) {
							slog.Warn("[CAM] stop streaming", "error", err)
						}
						s.logStats()
						saved, skipped := writer.Stats()
						slog.Info("[OUT] done", "saved", saved, "duplicates_skipped", skipped, "dir", writer.Dir())
						return nil
					}
				}
			})

			return g.Wait()
		},
	}
	img.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between frames, 100ms..60s (default camera.interval)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default: until interrupted)")
	cmd.Flags().DurationVar(&every, "stats-every", 10*time.Second, "how often to log throughput")
	return cmd
}

func newStatusCmd(gf *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the camera's status report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg, ble.Handlers{})
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.cam.RequestStatus(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			fmt.Printf("connected:  %v\n", st.BLE)
			fmt.Printf("streaming:  %v\n", st.Frames)
			fmt.Printf("audio:      %v\n", st.Audio)
			fmt.Printf("interval:   %.3fs\n", st.Interval)
			fmt.Printf("quality:    %d\n", st.Quality)
			fmt.Printf("resolution: %s\n", protocol.Resolution(st.Size))
			fmt.Printf("battery:    %d%%\n", st.Battery)
			fmt.Printf("free heap:  %d bytes\n", st.FreeHeap)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the report")
	return cmd
}

func newAudioCmd(gf *globalFlags) *cobra.Command {
	var (
		duration time.Duration
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Record the camera microphone to a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(gf)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(cfg.Output.Dir, fmt.Sprintf("audio_%s.wav", time.Now().Format("20060102_150405")))
			}

			rec := audio.NewRecorder(cfg.Audio.SampleRate)
			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)
			serveMetrics(ctx, g, cfg.Metrics.Listen)

			var samples []int16
			g.Go(func() error {
				s, err := openSession(ctx, cfg, ble.Handlers{Audio: rec.HandlePacket})
				if err != nil {
					return err
				}
				defer s.Close()

				if err := rec.Start(); err != nil {
					return err
				}
				if err := s.cam.StartAudio(); err != nil {
					rec.Stop()
					return err
				}
				slog.Info("[AUDIO] recording", "duration", duration, "rate", rec.SampleRate())

				<-ctx.Done()
				if err := s.cam.StopAudio(); err != nil {
					slog.Warn("[AUDIO] stop", "error", err)
				}
				samples = rec.Stop()
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}

			if len(samples) == 0 {
				return fmt.Errorf("no audio received")
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := audio.WriteWAV(f, samples, rec.SampleRate()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			seconds := float64(len(samples)) / float64(rec.SampleRate())
			slog.Info("[AUDIO] saved", "path", outPath, "seconds", fmt.Sprintf("%.1f", seconds))
			fmt.Println(outPath)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "recording length")
	cmd.Flags().StringVar(&outPath, "out", "", "WAV file path (default: <output.dir>/audio_<timestamp>.wav)")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Printf("Wrote default config to %s\n", path)
			return nil
		},
	})
	return cmd
}
