// Package ratelimit implements per-identity request admission control using
// fixed-window counters. Counters live in process memory by default; a
// Redis-backed gate is available for deployments that persist them.
package ratelimit

import (
	"time"
)

// Window is one identity's live fixed window. A window is superseded by a
// fresh one on the first check after it elapses; it is never rolled forward
// in place.
type Window struct {
	// Identity is the caller identity (user id or network address).
	Identity string

	// Start is when the window opened.
	Start time.Time

	// Count is the number of admitted requests in this window.
	Count int
}

// Elapsed returns true once the window of the given duration has passed.
func (w *Window) Elapsed(now time.Time, duration time.Duration) bool {
	return !now.Before(w.Start.Add(duration))
}

// ResetIn returns the time until the window of the given duration resets.
// Returns 0 if the window has already elapsed.
func (w *Window) ResetIn(now time.Time, duration time.Duration) time.Duration {
	d := w.Start.Add(duration).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns the quota left in this window against limit.
func (w *Window) Remaining(limit int) int {
	r := limit - w.Count
	if r < 0 {
		return 0
	}
	return r
}
