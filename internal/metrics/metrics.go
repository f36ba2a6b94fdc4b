// Package metrics exposes the prometheus instrumentation for the ingest
// engine. Collectors are registered on the default registry and served by the
// HTTP boundary at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_frames_captured_total",
			Help: "Frames successfully read per source",
		},
		[]string{"source", "protocol"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_frames_dropped_total",
			Help: "Frames dropped per source (read failures and queue overflow)",
		},
		[]string{"source", "protocol"},
	)

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_reconnect_attempts_total",
			Help: "Connect attempts per source, successful or not",
		},
		[]string{"source", "protocol"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_frame_queue_depth",
			Help: "Frames waiting in the shared ingest queue",
		},
	)

	SourcesOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_sources_online",
			Help: "Sources currently online or degraded",
		},
	)

	FramesDistributed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_frames_distributed_total",
			Help: "Frames encoded and published to the latest-frame cache",
		},
	)

	EncodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_encode_failures_total",
			Help: "JPEG encode failures in the distributor",
		},
	)
)
