// Package metrics provides Prometheus metrics for the topology views (RED + engine + WebSocket).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "kubilitics"
	subsystem = "topoview"
)

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// EngineUpdatesTotal counts dataset updates per view and whether membership changed.
	EngineUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "engine_updates_total",
			Help:      "Total number of dataset updates applied to a view.",
		},
		[]string{"view", "changed"},
	)

	// SimulationRestartsTotal counts reheats of the force simulation.
	SimulationRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "simulation_restarts_total",
			Help:      "Total number of force simulation restarts at full temperature.",
		},
		[]string{"view"},
	)

	// SimulationTicksTotal counts simulation steps that produced a frame.
	SimulationTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "simulation_ticks_total",
			Help:      "Total number of force simulation ticks.",
		},
		[]string{"view"},
	)

	FocusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "focus_changes_total",
			Help:      "Total number of focus changes.",
		},
		[]string{"view"},
	)

	// DatasetBuildDurationSeconds is the latency of building a dataset from the cluster.
	DatasetBuildDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataset_build_duration_seconds",
			Help:      "Dataset build duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	// WebSocketConnectionsActive is current number of WebSocket clients (capacity planning).
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	DatasetCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataset_cache_hits_total",
			Help:      "Total number of dataset cache hits.",
		},
	)

	DatasetCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataset_cache_misses_total",
			Help:      "Total number of dataset cache misses.",
		},
	)
)
