// Package metrics provides the centralized Prometheus registry reference for
// punserve. All metrics are defined in their respective packages (cache,
// ratelimit, scheduler) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by punserve.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - punserve_cache_hits_total{tier} (Counter): Cache hits by tier (memory, durable)
//   - punserve_cache_misses_total (Counter): Cache misses across both tiers
//   - punserve_cache_evictions_total (Counter): Entries evicted from the memory tier
//   - punserve_cache_expirations_total (Counter): Entries removed because their TTL elapsed
//   - punserve_cache_errors_total{operation} (Counter): Durable tier operation errors
//   - punserve_cache_entries (Gauge): Current number of entries in the memory tier
//
// Rate Limit Metrics (pkg/ratelimit):
//   - punserve_ratelimit_allowed_total (Counter): Requests admitted by the limiter
//   - punserve_ratelimit_denied_total (Counter): Requests rejected by the limiter
//   - punserve_ratelimit_degraded (Gauge): 1 while the limiter is failing open
//
// Scheduler Metrics (pkg/scheduler):
//   - punserve_sched_created_total (Counter): Scheduled deliveries created
//   - punserve_sched_cancelled_total (Counter): Scheduled deliveries cancelled
//   - punserve_sched_dispatch_attempts_total{channel, outcome} (Counter): Dispatch attempts
//     by channel and outcome (delivered, retry, permanent, exhausted)
//   - punserve_sched_retry_backoff_seconds (Histogram): Backoff applied after transient failures
//   - punserve_sched_due_backlog (Gauge): Due deliveries found by the most recent poll
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(punserve_cache_hits_total[5m])) /
//   (sum(rate(punserve_cache_hits_total[5m])) + sum(rate(punserve_cache_misses_total[5m])))
//
//   # Rate Limit Rejection Rate
//   rate(punserve_ratelimit_denied_total[5m]) /
//   (rate(punserve_ratelimit_allowed_total[5m]) + rate(punserve_ratelimit_denied_total[5m]))
//
//   # Delivery Failure Rate
//   sum(rate(punserve_sched_dispatch_attempts_total{outcome=~"permanent|exhausted"}[5m]))
//
//   # P95 Retry Backoff
//   histogram_quantile(0.95, rate(punserve_sched_retry_backoff_seconds_bucket[5m]))
