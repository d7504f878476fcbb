package cache

import (
	"time"
)

// Entry is a cached payload with its expiry bookkeeping.
type Entry struct {
	// Key is the cache key string this entry is stored under.
	Key string `json:"key"`

	// Value is the opaque payload.
	Value []byte `json:"value"`

	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`

	// LastAccessedAt is updated on every volatile-tier read.
	// Not persisted to the durable tier.
	LastAccessedAt time.Time `json:"-"`
}

// NewEntry builds an entry expiring ttl from now.
func NewEntry(key string, value []byte, ttl time.Duration, now time.Time) *Entry {
	return &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
	}
}

// IsExpired returns true if the entry has expired at the given time.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration at the given time.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
