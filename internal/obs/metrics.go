// Package obs owns the process-wide Prometheus registry, the HTTP
// health/metrics surface, and optional OpenTelemetry tracing.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_claimed_total",
		Help: "Total number of jobs claimed from the job store, by family.",
	}, []string{"family"})

	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_completed_total",
		Help: "Total number of jobs that reached the completed state.",
	}, []string{"kind"})

	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_failed_total",
		Help: "Total number of jobs that reached the terminal failed state, by error kind.",
	}, []string{"kind", "error_kind"})

	JobsRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_retried_total",
		Help: "Total number of jobs reset with backoff for another attempt.",
	}, []string{"error_kind"})

	JobProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "export_job_processing_duration_seconds",
		Help:    "Time from claim to terminal state (completed or failed), by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "export_render_duration_seconds",
		Help:    "Time spent inside the render pool producing output bytes.",
		Buckets: prometheus.DefBuckets,
	})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "export_queue_depth",
		Help: "Current count of pending jobs eligible for claim, by family.",
	}, []string{"family"})

	RenderPoolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "export_render_pool_in_use",
		Help: "Number of render pool slots currently checked out.",
	})

	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "export_blobstore_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open.",
	})

	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "export_blobstore_circuit_breaker_trips_total",
		Help: "Count of times the blob-store circuit breaker transitioned to Open.",
	})

	StaleRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "export_stale_jobs_recovered_total",
		Help: "Total number of processing jobs reset by the stale-job sweep.",
	})

	RetentionDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "export_retention_deleted_total",
		Help: "Total number of completed job rows purged by the retention sweep.",
	})

	CanaryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "export_canary_failures_total",
		Help: "Total number of startup canary self-tests that failed.",
	})
)

func init() {
	prometheus.MustRegister(
		JobsClaimed, JobsCompleted, JobsFailed, JobsRetried, JobProcessingDuration,
		RenderDuration, QueueDepth, RenderPoolInUse, CircuitBreakerState,
		CircuitBreakerTrips, StaleRecovered, RetentionDeleted, CanaryFailures,
	)
}
