// Package metrics provides Prometheus metrics for recordlock operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordlock_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordlock_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Lease operation metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordlock_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "claim", "release", "status"; status: "success", "conflict", "error"
	)

	LockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recordlock_lock_operation_duration_seconds",
			Help:    "Lock operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LockConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordlock_lock_conflicts_total",
			Help: "Total number of claim conflicts by scope",
		},
		[]string{"scope"},
	)

	// Active leases gauge, refreshed from the store by the lease sweeper.
	ActiveLeases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordlock_active_leases",
			Help: "Number of live leases, refreshed on each sweep interval",
		},
	)

	// Watch subscription metrics
	WatchSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordlock_watch_subscribers_active",
			Help: "Number of connected watch subscribers",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordlock_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)

// RegisterMetrics ensures all metrics are registered with Prometheus.
// This function is idempotent and safe to call multiple times.
func RegisterMetrics() {
	// All metrics are automatically registered via promauto.
	// This function exists for explicit initialization if needed.
}
