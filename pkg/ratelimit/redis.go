package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// checkScript performs the fixed-window increment-and-compare atomically.
// A denied call must not increment the counter, so INCR-then-compare in a
// pipeline is not enough; the comparison and the increment have to happen
// in one step.
//
// KEYS[1] = window counter key
// ARGV[1] = limit
// ARGV[2] = expiry for a fresh window, in milliseconds
//
// Returns {allowed, remaining}.
var checkScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return {0, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, tonumber(ARGV[1]) - count}
`)

// RedisGate is a fixed-window limiter with counters persisted in Redis, for
// deployments where admission state must survive a restart. Windows are
// aligned to epoch boundaries so the counter key changes naturally at
// rollover and Redis expires the old one.
//
// When Redis is unreachable the gate fails open by default: the request is
// admitted and the degradation is recorded. FailClosed flips that policy.
type RedisGate struct {
	redis      *redis.Client
	limit      int
	window     time.Duration
	failClosed bool
	logger     zerolog.Logger
}

// NewRedisGate creates a Redis-backed admission gate.
func NewRedisGate(redisClient *redis.Client, limit int, window time.Duration, failClosed bool, logger zerolog.Logger) *RedisGate {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisGate{
		redis:      redisClient,
		limit:      limit,
		window:     window,
		failClosed: failClosed,
		logger:     logger,
	}
}

// Check admits or denies one request for identity.
func (g *RedisGate) Check(ctx context.Context, identity string) (Decision, error) {
	now := time.Now()
	start := now.Truncate(g.window)
	resetIn := start.Add(g.window).Sub(now)

	key := fmt.Sprintf("punserve:rl:%s:%d", identity, start.Unix())

	res, err := checkScript.Run(ctx, g.redis, []string{key},
		g.limit, g.window.Milliseconds()).Int64Slice()
	if err != nil {
		return g.storeFailure(identity, resetIn, err)
	}
	rateLimitDegraded.Set(0)

	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected script result %v", res)
	}

	if res[0] == 0 {
		rateLimitDeniedTotal.Inc()
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: resetIn,
		}, nil
	}

	rateLimitAllowedTotal.Inc()
	return Decision{
		Allowed:   true,
		Remaining: int(res[1]),
	}, nil
}

// storeFailure applies the configured unavailability policy.
func (g *RedisGate) storeFailure(identity string, resetIn time.Duration, err error) (Decision, error) {
	rateLimitDegraded.Set(1)

	if g.failClosed {
		g.logger.Error().Err(err).Str("identity", identity).
			Msg("Rate limit store unreachable, failing closed")
		return Decision{
			Allowed:    false,
			RetryAfter: resetIn,
			Degraded:   true,
		}, fmt.Errorf("rate limit store: %w", err)
	}

	g.logger.Warn().Err(err).Str("identity", identity).
		Msg("Rate limit store unreachable, failing open")
	return Decision{
		Allowed:  true,
		Degraded: true,
	}, nil
}
