package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed tracks processed jobs by outcome
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracksync_jobs_processed_total",
			Help: "Total number of jobs processed",
		},
		[]string{"result"},
	)

	// JobRetriesScheduled tracks jobs scheduled for a backoff retry
	JobRetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_job_retries_scheduled_total",
			Help: "Total number of job retries scheduled",
		},
	)

	// BatchesPaused tracks quota-triggered batch pauses
	BatchesPaused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_batches_paused_total",
			Help: "Total number of batches paused for quota cooldown",
		},
	)

	// BatchesFinalized tracks finalized batches
	BatchesFinalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_batches_finalized_total",
			Help: "Total number of batches finalized",
		},
	)

	// StuckJobsRecovered tracks jobs reclaimed from dead executions
	StuckJobsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracksync_stuck_jobs_recovered_total",
			Help: "Total number of stuck jobs reset to queued",
		},
	)

	// QuotaCooldownSeconds tracks the cooldown durations applied on pause
	QuotaCooldownSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracksync_quota_cooldown_seconds",
			Help:    "Cooldown duration applied when pausing a batch",
			Buckets: []float64{65, 105, 130, 210, 300, 3600, 7200, 18000},
		},
	)

	// SyncDuration tracks sync executor latency per destination
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracksync_sync_duration_seconds",
			Help:    "Sync executor latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)
)
