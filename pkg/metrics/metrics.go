package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations counts cache lookups by result (hit|miss).
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_cache_operations_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheWrites counts cache writes by result (ok|error).
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_cache_writes_total",
			Help: "Total number of cache writes",
		},
		[]string{"result"},
	)

	// Invalidations counts invalidation runs per entity type.
	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_cache_invalidations_total",
			Help: "Total number of cache invalidation runs",
		},
		[]string{"entity"},
	)

	// InvalidationFailures counts cache deletes that failed during invalidation.
	// Failures are never surfaced to callers, so this counter is the only
	// place they become visible.
	InvalidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "noticeboard_cache_invalidation_failures_total",
			Help: "Total number of failed cache invalidation deletes",
		},
	)

	// MaintenanceRuns counts maintenance job executions by result (success|failure).
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_maintenance_runs_total",
			Help: "Total number of cache maintenance runs",
		},
		[]string{"result"},
	)

	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noticeboard_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "noticeboard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
