package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for admission control.
var (
	rateLimitAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punserve_ratelimit_allowed_total",
		Help: "Total number of requests admitted by the rate limiter",
	})

	rateLimitDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "punserve_ratelimit_denied_total",
		Help: "Total number of requests denied by the rate limiter",
	})

	rateLimitDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "punserve_ratelimit_degraded",
		Help: "1 when the persisted counter store is unreachable and the limiter is failing open",
	})
)

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed is true when the request is admitted.
	Allowed bool

	// Remaining is the quota left in the current window after this check.
	Remaining int

	// RetryAfter is how long until the window resets. Only meaningful on
	// denial.
	RetryAfter time.Duration

	// Degraded is true when the decision was made while the backing
	// counter store was unreachable (fail-open admission).
	Degraded bool
}

// Gate admits or denies requests per identity.
type Gate interface {
	Check(ctx context.Context, identity string) (Decision, error)
}

const limiterShards = 16

// limiterShard is one lock domain of the in-memory limiter.
type limiterShard struct {
	mu      sync.Mutex
	windows map[string]*Window
}

// Limiter is the in-memory fixed-window limiter. Identities are spread
// across shards by hash so concurrent request handlers do not serialize on
// one lock; increment-and-compare for a single identity is atomic under its
// shard lock.
type Limiter struct {
	limit  int
	window time.Duration
	shards [limiterShards]*limiterShard
	logger zerolog.Logger
}

// NewLimiter creates an in-memory limiter admitting limit requests per
// identity per window.
func NewLimiter(limit int, window time.Duration, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		logger: logger,
	}
	for i := range l.shards {
		l.shards[i] = &limiterShard{windows: make(map[string]*Window)}
	}
	return l
}

func (l *Limiter) shardFor(identity string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return l.shards[h.Sum32()%limiterShards]
}

// Check admits or denies one request for identity. Window rollover is lazy:
// the first check after the window elapses opens a fresh window before the
// call is evaluated. A denied call does not increment the counter.
func (l *Limiter) Check(_ context.Context, identity string) (Decision, error) {
	now := time.Now()
	s := l.shardFor(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[identity]
	if !ok || w.Elapsed(now, l.window) {
		if ok {
			l.logger.Debug().Str("identity", identity).Msg("Rate limit window rolled over")
		}
		w = &Window{Identity: identity, Start: now}
		s.windows[identity] = w
	}

	if w.Count >= l.limit {
		rateLimitDeniedTotal.Inc()
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.ResetIn(now, l.window),
		}, nil
	}

	w.Count++
	rateLimitAllowedTotal.Inc()
	return Decision{
		Allowed:   true,
		Remaining: w.Remaining(l.limit),
	}, nil
}

// Sweep drops windows that elapsed before now, bounding memory held for
// idle identities. Safe to run concurrently with Check.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for identity, w := range s.windows {
			if w.Elapsed(now, l.window) {
				delete(s.windows, identity)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
