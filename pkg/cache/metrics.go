package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punserve_cache_hits_total",
			Help: "Total number of content cache hits",
		},
		[]string{"tier"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punserve_cache_misses_total",
			Help: "Total number of content cache misses",
		},
	)

	// CacheEvictions tracks LRU evictions from the volatile tier
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punserve_cache_evictions_total",
			Help: "Total number of volatile-tier LRU evictions",
		},
	)

	// CacheExpirations tracks entries removed because their TTL lapsed
	CacheExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punserve_cache_expirations_total",
			Help: "Total number of cache entries removed by TTL expiry",
		},
	)

	// CacheErrors tracks durable-tier operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punserve_cache_errors_total",
			Help: "Total number of durable-tier cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)

	// CacheSize tracks the current volatile-tier entry count
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "punserve_cache_entries",
			Help: "Current number of entries in the volatile cache tier",
		},
	)
)
