// Package cache provides the two-tier content cache that fronts the
// generation service.
//
// The cache has two tiers:
//
//   - A volatile tier: sharded in-memory LRU with bounded capacity. Keys are
//     spread across independent lock domains by hash, so concurrent request
//     handlers never contend on a single lock. All recency bookkeeping is
//     O(1) per operation.
//   - A durable tier: Redis, written through on every Put with the entry's
//     TTL. Evicting an entry from the volatile tier does not touch the
//     durable tier; the entry is promoted back on the next Get until its
//     TTL lapses.
//
// Expiry is enforced lazily on access and by a periodic sweep of the
// volatile tier; the durable tier expires keys natively.
//
// Durable-tier failures are non-fatal: reads fail as misses, writes are
// logged and dropped, and serving continues against the generation service.
//
// # Basic Usage
//
//	mem := cache.NewMemoryTier(1024, 16)
//	manager := cache.NewManager(mem, redisClient, time.Minute, logger)
//
//	key := cache.NewKey("puns", "medium", "")
//
//	value, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// miss: call the generation service, then
//		// manager.Put(ctx, key, generated, ttl)
//	}
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - punserve_cache_hits_total{tier="memory"|"redis"} - Cache hits by tier
//   - punserve_cache_misses_total - Cache misses
//   - punserve_cache_evictions_total - Volatile-tier LRU evictions
//   - punserve_cache_expirations_total - Entries removed by TTL expiry
//   - punserve_cache_errors_total{operation} - Durable-tier errors
//   - punserve_cache_entries - Current volatile-tier size
package cache
