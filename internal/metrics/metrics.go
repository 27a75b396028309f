// Package metrics exposes Prometheus collectors for the camera client:
// packet classification, tolerated protocol noise, completed frames,
// streaming deliveries, control commands and capture latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blecam"

// Drop reasons for packets the assembler absorbs without surfacing an error.
const (
	DropMalformed  = "malformed"
	DropPremature  = "premature"
	DropOutOfRange = "out_of_range"
	DropDuplicate  = "duplicate"
	DropUnknown    = "unknown"
)

var (
	packetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Total notification packets received, by sub-channel and header type",
		},
		[]string{"channel", "type"},
	)

	packetBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_bytes_total",
			Help:      "Total raw notification bytes received, all sub-channels",
		},
	)

	packetsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets silently dropped by the frame assembler",
		},
		[]string{"reason"},
	)

	transfersAbandonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_abandoned_total",
			Help:      "Transfers that ended below the completion threshold or were superseded by a new START",
		},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames finalized by the assembler",
		},
		[]string{"channel"},
	)

	frameBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_bytes",
			Help:      "Size of finalized frames in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10), // 1KiB .. 512KiB
		},
	)

	frameCompletionRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_completion_ratio",
			Help:      "Fraction of expected chunks received for finalized frames",
			Buckets:   []float64{.95, .96, .97, .98, .99, 1},
		},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_deliveries_total",
			Help:      "Streaming frame hand-offs by outcome",
		},
		[]string{"status"}, // status: delivered, dropped, failed
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Control commands sent to the camera",
		},
		[]string{"command", "status"}, // status: success, error
	)

	captureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Time from CAPTURE command to finalized frame or timeout",
			Buckets:   []float64{.25, .5, 1, 2, 3, 5, 10, 20, 30},
		},
		[]string{"status"}, // status: success, timeout, error
	)

	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the BLE link to the camera is up",
		},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Successful reconnections after a dropped link",
		},
	)
)

var allMetrics = []prometheus.Collector{
	packetsTotal,
	packetBytesTotal,
	packetsDroppedTotal,
	transfersAbandonedTotal,
	framesTotal,
	frameBytes,
	frameCompletionRatio,
	deliveriesTotal,
	commandsTotal,
	captureDuration,
	connected,
	reconnectsTotal,
}

// RecordPacket counts one received packet of n bytes.
func RecordPacket(channel, packetType string, n int) {
	packetsTotal.WithLabelValues(channel, packetType).Inc()
	packetBytesTotal.Add(float64(n))
}

// RecordDrop counts a packet absorbed by the assembler.
func RecordDrop(reason string) {
	packetsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordAbandoned counts a transfer discarded without producing a frame.
func RecordAbandoned() {
	transfersAbandonedTotal.Inc()
}

// RecordFrame counts a finalized frame.
func RecordFrame(channel string, size int, completion float64) {
	framesTotal.WithLabelValues(channel).Inc()
	frameBytes.Observe(float64(size))
	frameCompletionRatio.Observe(completion)
}

// RecordDelivery counts a streaming hand-off outcome.
func RecordDelivery(status string) {
	deliveriesTotal.WithLabelValues(status).Inc()
}

// RecordCommand counts a control command write.
func RecordCommand(command, status string) {
	commandsTotal.WithLabelValues(command, status).Inc()
}

// RecordCapture observes the duration of a one-shot capture.
func RecordCapture(status string, seconds float64) {
	captureDuration.WithLabelValues(status).Observe(seconds)
}

// SetConnected updates the link gauge.
func SetConnected(up bool) {
	if up {
		connected.Set(1)
		return
	}
	connected.Set(0)
}

// RecordReconnect counts a successful reconnection.
func RecordReconnect() {
	reconnectsTotal.Inc()
}
