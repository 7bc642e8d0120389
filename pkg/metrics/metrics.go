// Package metrics defines the prometheus collectors the router updates
// as it dispatches requests. Instrumentation only: registering a
// /metrics handler is HTTP listener plumbing and stays out per
// spec.md's Non-goals — a host process wires these collectors into its
// own registry and exposition endpoint.
//
// Grounded on cuemby-warren/pkg/metrics/metrics.go's package-level
// collector-var style (one prometheus.NewXxx per metric, grouped by
// subsystem with a comment banner), scoped here to the router's own
// subsystems (workers, breaker, retry) instead of the teacher's
// cluster/raft/API set.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Worker metrics
	WorkerInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inferoute_worker_inflight_requests",
			Help: "Current in-flight requests per worker",
		},
		[]string{"worker", "kind"},
	)

	WorkerHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inferoute_worker_healthy",
			Help: "Whether a worker currently passes health probes (1 = healthy)",
		},
		[]string{"worker", "kind"},
	)

	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inferoute_workers_total",
			Help: "Total registered workers by kind",
		},
		[]string{"kind"},
	)

	// Circuit breaker metrics
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inferoute_breaker_state",
			Help: "Circuit breaker state per worker (0=closed, 1=open, 2=half_open)",
		},
		[]string{"worker"},
	)

	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inferoute_breaker_transitions_total",
			Help: "Total circuit breaker state transitions by worker and resulting state",
		},
		[]string{"worker", "state"},
	)

	// Dispatch metrics
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inferoute_dispatch_total",
			Help: "Total dispatch attempts by router kind and outcome",
		},
		[]string{"router", "outcome"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inferoute_dispatch_duration_seconds",
			Help:    "Dispatch duration in seconds, from selection to response write",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"router"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inferoute_retry_attempts_total",
			Help: "Total retry attempts by router kind",
		},
		[]string{"router"},
	)
)

// Collectors returns every collector this package defines, for a host
// process to register against its own prometheus.Registerer.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		WorkerInflight,
		WorkerHealthy,
		WorkersTotal,
		BreakerState,
		BreakerTransitionsTotal,
		DispatchTotal,
		DispatchDuration,
		RetryAttemptsTotal,
	}
}
