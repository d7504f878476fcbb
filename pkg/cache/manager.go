package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the requested key was not found in either tier.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidTTL indicates a non-positive TTL was passed to Put.
	ErrInvalidTTL = errors.New("ttl must be positive")
)

// keyPrefix namespaces durable-tier keys in Redis.
const keyPrefix = "punserve:cache:"

// Stats is a snapshot of cache counters since the last Clear.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// Manager is the two-tier content cache: a sharded in-memory LRU tier in
// front of a durable Redis tier. The durable tier is optional; with a nil
// Redis client the cache is memory-only.
//
// Durable-tier failures are never fatal: a failed read is a miss, a failed
// write is logged and dropped. The volatile tier keeps serving.
type Manager struct {
	mem           *MemoryTier
	redis         *redis.Client
	logger        zerolog.Logger
	sweepInterval time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewManager creates a cache manager. redisClient may be nil for a
// memory-only cache.
func NewManager(mem *MemoryTier, redisClient *redis.Client, sweepInterval time.Duration, logger zerolog.Logger) *Manager {
	if mem == nil {
		panic("memory tier cannot be nil")
	}
	return &Manager{
		mem:           mem,
		redis:         redisClient,
		logger:        logger,
		sweepInterval: sweepInterval,
	}
}

// Get retrieves a cached value. The volatile tier is checked first; on miss
// the durable tier is consulted and, if the entry is still live, promoted
// back into the volatile tier.
// Returns ErrCacheMiss when neither tier holds a live entry.
func (m *Manager) Get(ctx context.Context, key Key) ([]byte, error) {
	now := time.Now()
	ks := key.String()

	if e, ok := m.mem.Get(ks, now); ok {
		m.hits.Add(1)
		CacheHits.WithLabelValues("memory").Inc()
		return e.Value, nil
	}

	if m.redis != nil {
		if e := m.durableGet(ctx, ks, now); e != nil {
			// Promote so the next read is memory-tier
			if evicted := m.mem.Put(e); evicted > 0 {
				m.evictions.Add(uint64(evicted))
				CacheEvictions.Add(float64(evicted))
			}
			m.hits.Add(1)
			CacheHits.WithLabelValues("redis").Inc()
			return e.Value, nil
		}
	}

	m.misses.Add(1)
	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// durableGet reads an entry from Redis. Any failure is treated as a miss.
func (m *Manager) durableGet(ctx context.Context, ks string, now time.Time) *Entry {
	data, err := m.redis.Get(ctx, keyPrefix+ks).Bytes()
	if err != nil {
		if err != redis.Nil {
			CacheErrors.WithLabelValues("get").Inc()
			m.logger.Warn().Err(err).Str("cache_key", ks).
				Msg("Durable tier read failed, treating as miss")
		}
		return nil
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("cache_key", ks).
			Msg("Corrupt durable cache entry, treating as miss")
		return nil
	}

	// Redis expires keys on its own; this guards clock skew between writers.
	if e.IsExpired(now) {
		_ = m.redis.Del(ctx, keyPrefix+ks).Err()
		CacheExpirations.Inc()
		return nil
	}

	e.LastAccessedAt = now
	return &e
}

// Put writes a value to both tiers with the given TTL. An existing entry
// for the key is overwritten (last-writer-wins). A non-positive TTL is
// rejected with ErrInvalidTTL.
func (m *Manager) Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}

	now := time.Now()
	ks := key.String()
	entry := NewEntry(ks, value, ttl, now)

	if evicted := m.mem.Put(entry); evicted > 0 {
		m.evictions.Add(uint64(evicted))
		CacheEvictions.Add(float64(evicted))
	}
	CacheSize.Set(float64(m.mem.Len()))

	if m.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		if err := m.redis.Set(ctx, keyPrefix+ks, data, ttl).Err(); err != nil {
			// Non-fatal: the volatile tier already holds the entry
			CacheErrors.WithLabelValues("set").Inc()
			m.logger.Warn().Err(err).Str("cache_key", ks).
				Msg("Durable tier write failed")
		}
	}

	m.logger.Debug().Str("cache_key", ks).Dur("ttl", ttl).Msg("Cache entry stored")
	return nil
}

// Invalidate removes the key from both tiers immediately.
func (m *Manager) Invalidate(ctx context.Context, key Key) error {
	ks := key.String()
	m.mem.Delete(ks)
	CacheSize.Set(float64(m.mem.Len()))

	if m.redis != nil {
		if err := m.redis.Del(ctx, keyPrefix+ks).Err(); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return fmt.Errorf("durable delete: %w", err)
		}
	}
	return nil
}

// Clear empties both tiers and resets the statistics counters.
func (m *Manager) Clear(ctx context.Context) error {
	m.mem.Clear()
	m.hits.Store(0)
	m.misses.Store(0)
	m.evictions.Store(0)
	CacheSize.Set(0)

	if m.redis != nil {
		if err := m.durableClear(ctx); err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("durable clear: %w", err)
		}
	}
	return nil
}

// durableClear scans and deletes all namespaced keys.
func (m *Manager) durableClear(ctx context.Context) error {
	iter := m.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := m.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Stats returns a snapshot of the counters since the last Clear.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Size:      m.mem.Len(),
	}
}

// Sweep removes expired entries from the volatile tier. The durable tier
// expires keys natively via Redis TTLs.
func (m *Manager) Sweep(now time.Time) int {
	removed := m.mem.Sweep(now)
	CacheSize.Set(float64(m.mem.Len()))
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Volatile tier sweep")
	}
	return removed
}

// Run drives the periodic volatile-tier sweep until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
