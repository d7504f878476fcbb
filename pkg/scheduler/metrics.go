package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulesCreated counts accepted schedule requests.
	SchedulesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punserve_sched_created_total",
		Help: "Total number of scheduled deliveries created",
	})

	// SchedulesCancelled counts successful cancellations.
	SchedulesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punserve_sched_cancelled_total",
		Help: "Total number of scheduled deliveries cancelled",
	})

	// DispatchAttempts counts dispatch attempts by channel and outcome.
	// Outcome is one of: delivered, retry, permanent, exhausted.
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "punserve_sched_dispatch_attempts_total",
		Help: "Total dispatch attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	// RetryBackoff observes the backoff applied after transient failures.
	RetryBackoff = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "punserve_sched_retry_backoff_seconds",
		Help:    "Backoff duration applied after transient dispatch failures",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// DueBacklog reports how many deliveries the last poll found due.
	DueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "punserve_sched_due_backlog",
		Help: "Number of due deliveries found by the most recent poll",
	})
)
