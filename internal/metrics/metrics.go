// Package metrics registers the Prometheus collectors this process
// exposes on /metrics, following the teacher's promauto registration
// style but scoped to this domain's pipeline instead of scheduler
// queue/leadership metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed pipeline runs by final status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsoa_runs_total",
		Help: "Total number of agent runs by final status",
	}, []string{"status"})

	// RunDurationSeconds tracks wall-clock duration of a full run.
	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fsoa_run_duration_seconds",
		Help:    "Duration of a full agent run",
		Buckets: prometheus.DefBuckets,
	})

	// OpportunitiesProcessed tracks how many opportunities a run evaluated.
	OpportunitiesProcessed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fsoa_opportunities_processed",
		Help:    "Number of opportunities evaluated in a run",
		Buckets: []float64{0, 10, 50, 100, 250, 500, 1000},
	})

	// NotificationsSentTotal counts dispatched notifications by type.
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsoa_notifications_sent_total",
		Help: "Total number of notifications successfully dispatched",
	}, []string{"notification_type"})

	// NotificationsFailedTotal counts notifications that exhausted retries
	// or had no resolvable webhook.
	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsoa_notifications_failed_total",
		Help: "Total number of notifications that failed permanently",
	}, []string{"reason"})

	// CacheHitRatio tracks the most recent OpportunityCache hit ratio.
	CacheHitRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fsoa_cache_hit_ratio",
		Help: "Most recent opportunity cache hit ratio",
	})

	// SchedulerSkippedTicks counts ticks dropped because the previous run
	// was still executing.
	SchedulerSkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fsoa_scheduler_skipped_ticks_total",
		Help: "Total number of scheduler ticks skipped due to an overrunning run",
	})
)
