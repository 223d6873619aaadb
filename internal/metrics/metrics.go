// Package metrics declares the Prometheus instrumentation for webexsync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync loop
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webexsync_cycles_total",
			Help: "Reconciliation cycles by outcome",
		},
		[]string{"result"}, // "success", "failure"
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webexsync_cycle_duration_seconds",
			Help:    "Duration of one reconciliation cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	LastSyncTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webexsync_last_sync_timestamp_seconds",
			Help: "Unix time of the last successful cycle",
		},
	)

	// Reconciler
	NodesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webexsync_nodes_created_total",
			Help: "Graph nodes created by the reconciler",
		},
		[]string{"kind"}, // "device", "endpoint"
	)

	SamplesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webexsync_samples_written_total",
			Help: "Time-series samples written per metric",
		},
		[]string{"metric"},
	)

	// Remote API
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webexsync_remote_requests_total",
			Help: "Webex API requests by operation and outcome",
		},
		[]string{"operation", "result"}, // result: "success", "failure", "rejected"
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webexsync_token_refreshes_total",
			Help: "Access token refresh attempts by outcome",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webexsync_circuit_breaker_state",
			Help: "Webex API breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
