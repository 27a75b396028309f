package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/blecam/internal/ble"
	"github.com/chaz8081/blecam/internal/camera"
	"github.com/chaz8081/blecam/internal/config"
	"github.com/chaz8081/blecam/internal/metrics"
)

// session is a connected camera.
type session struct {
	cfg    *config.Config
	client *ble.Client
	cam    *camera.Camera
}

// openSession resolves the device address (scanning if needed), connects
// and routes notifications into a Camera.
func openSession(ctx context.Context, cfg *config.Config, h ble.Handlers) (*session, error) {
	adapter := ble.NewBluetoothAdapter()

	addr := cfg.Device.Address
	if addr == "" {
		slog.Info("[BLE] scanning", "names", cfg.Device.Names, "timeout", cfg.Device.ScanTimeout)
		dev, err := ble.FindDevice(ctx, adapter, cfg.Device.Names, cfg.Device.ScanTimeout)
		if err != nil {
			return nil, err
		}
		addr = dev.Address
	}

	client, err := ble.NewClient(adapter, addr, ble.ClientOptions{
		ConnectTimeout: cfg.Device.ConnectTimeout,
		ReconnectMax:   cfg.Device.ReconnectMax,
		CommandDelay:   cfg.Device.CommandDelay,
	})
	if err != nil {
		return nil, err
	}

	cam := camera.New(client, camera.Options{
		Assembler: camera.AssemblerOptions{
			ChunkSize:           cfg.Camera.ChunkSize,
			CompletionThreshold: cfg.Camera.CompletionThreshold,
		},
		CaptureTimeout: cfg.Camera.CaptureTimeout,
		DeliveryQueue:  cfg.Camera.DeliveryQueue,
	})

	h.Image = cam.HandleImagePacket
	h.Frame = cam.HandleFramePacket
	h.Status = cam.HandleStatus
	onConnected := h.Connected
	h.Connected = func(up bool) {
		if up {
			cam.ResetStats()
			slog.Info("[CAM] connection episode started", "episode", cam.Stats().EpisodeID)
		}
		if onConnected != nil {
			onConnected(up)
		}
	}
	client.SetHandlers(h)

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, client: client, cam: cam}, nil
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		slog.Warn("[BLE] close", "error", err)
	}
}

// logStats prints the performance counters and assembler counters.
func (s *session) logStats() {
	st := s.cam.Stats()
	c := s.cam.Counters()
	slog.Info("[CAM] stats",
		"episode", st.EpisodeID,
		"frames", st.Frames,
		"bytes", st.Bytes,
		"elapsed", st.Elapsed.Round(time.Second),
		"fps", fmt.Sprintf("%.2f", st.AvgFPS),
		"kbps", fmt.Sprintf("%.1f", st.AvgKbps),
		"dropped", c.Malformed+c.Unknown+c.Premature+c.OutOfRange+c.Duplicates,
		"abandoned", c.Abandoned,
		"delivery_drops", c.DeliveryDrops,
		"consumer_failures", c.ConsumerFailures,
	)
}

// serveMetrics runs the Prometheus exporter in g until ctx is done. It is a
// no-op when metrics.listen is empty.
func serveMetrics(ctx context.Context, g *errgroup.Group, listen string) {
	if listen == "" {
		return
	}
	exp := metrics.NewExporter(listen)
	g.Go(func() error {
		slog.Info("[METRICS] serving", "addr", listen)
		if err := exp.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return exp.Shutdown(shutdownCtx)
	})
}
