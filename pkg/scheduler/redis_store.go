package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pundora/punserve/pkg/notify"
)

// Redis key layout.
const (
	jobKeyPrefix   = "punserve:sched:job:"
	dueKey         = "punserve:sched:due"
	identKeyPrefix = "punserve:sched:ident:"
)

// claimScript is the compare-and-set transition into dispatching. The
// status check and the write happen in one step so two pollers (or a
// racing cancel) can never both move the same occurrence.
//
// KEYS[1] = job hash, KEYS[2] = due zset
// ARGV[1] = expected status, ARGV[2] = job id
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'status') == ARGV[1] then
  redis.call('HSET', KEYS[1], 'status', 'dispatching')
  redis.call('ZREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// cancelScript moves a pending job to cancelled, or reports a conflict.
//
// KEYS[1] = job hash, KEYS[2] = due zset
// ARGV[1] = job id, ARGV[2] = retention ms
var cancelScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'status') == 'pending' then
  redis.call('HSET', KEYS[1], 'status', 'cancelled')
  redis.call('ZREM', KEYS[2], ARGV[1])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// RedisStore persists deliveries in Redis: one hash per record, a ZSET of
// non-terminal records scored by due time, and a per-identity index set.
// Terminal records are retained for audit and expired after retentionTTL.
type RedisStore struct {
	redis        *redis.Client
	retentionTTL time.Duration
	logger       zerolog.Logger
}

// NewRedisStore creates a Redis-backed delivery store.
func NewRedisStore(redisClient *redis.Client, retentionTTL time.Duration, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:        redisClient,
		retentionTTL: retentionTTL,
		logger:       logger,
	}
}

func jobKey(id string) string   { return jobKeyPrefix + id }
func identKey(id string) string { return identKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, d *Delivery) error {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, jobKey(d.ID), deliveryFields(d))
	pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(d.DueAt().UnixMilli()), Member: d.ID})
	pipe.SAdd(ctx, identKey(d.Identity), d.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist delivery: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Delivery, error) {
	fields, err := s.redis.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read delivery: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return deliveryFromFields(fields)
}

func (s *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]*Delivery, error) {
	ids, err := s.redis.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan due deliveries: %w", err)
	}

	due := make([]*Delivery, 0, len(ids))
	for _, id := range ids {
		d, err := s.Get(ctx, id)
		if err == ErrNotFound {
			// Record expired or was deleted; drop the index entry
			s.redis.ZRem(ctx, dueKey, id)
			s.logger.Debug().Str("delivery_id", id).Msg("Dropped stale due index entry")
			continue
		}
		if err != nil {
			return nil, err
		}
		// The zset may briefly lag a concurrent transition
		if d.Status == StatusPending || d.Status == StatusFailedRetry {
			due = append(due, d)
		}
	}
	return due, nil
}

func (s *RedisStore) ClaimDispatching(ctx context.Context, id string, from Status) (bool, error) {
	res, err := claimScript.Run(ctx, s.redis,
		[]string{jobKey(id), dueKey}, string(from), id).Int()
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	if res == -1 {
		return false, ErrNotFound
	}
	return res == 1, nil
}

func (s *RedisStore) Cancel(ctx context.Context, id string) error {
	res, err := cancelScript.Run(ctx, s.redis,
		[]string{jobKey(id), dueKey}, id, s.retentionTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("cancel delivery: %w", err)
	}
	switch res {
	case -1:
		return ErrNotFound
	case 0:
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, d *Delivery) error {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, jobKey(d.ID), deliveryFields(d))
	if d.Status.Terminal() {
		pipe.ZRem(ctx, dueKey, d.ID)
		pipe.PExpire(ctx, jobKey(d.ID), s.retentionTTL)
	} else {
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(d.DueAt().UnixMilli()), Member: d.ID})
		pipe.Persist(ctx, jobKey(d.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

func (s *RedisStore) ListPending(ctx context.Context, identity string) ([]*Delivery, error) {
	ids, err := s.redis.SMembers(ctx, identKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}

	var out []*Delivery
	for _, id := range ids {
		d, err := s.Get(ctx, id)
		if err == ErrNotFound {
			// Terminal record aged out of retention
			s.redis.SRem(ctx, identKey(identity), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	sortByDueAt(out)
	return out, nil
}

// Hash field encoding.

func deliveryFields(d *Delivery) map[string]any {
	return map[string]any{
		"id":            d.ID,
		"identity":      d.Identity,
		"payload_ref":   d.PayloadRef,
		"channel":       string(d.Channel),
		"destination":   d.Destination,
		"target_time":   d.TargetTime.Format(time.RFC3339Nano),
		"recurrence":    string(d.Recurrence),
		"status":        string(d.Status),
		"attempts":      d.Attempts,
		"next_retry_at": formatTimeOrEmpty(d.NextRetryAt),
		"last_error":    d.LastError,
		"created_at":    d.CreatedAt.Format(time.RFC3339Nano),
	}
}

func deliveryFromFields(fields map[string]string) (*Delivery, error) {
	status, err := ParseStatus(fields["status"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: %w", err)
	}
	recurrence, err := ParseRecurrence(fields["recurrence"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: %w", err)
	}
	channel, err := notify.ParseChannel(fields["channel"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: %w", err)
	}

	targetTime, err := time.Parse(time.RFC3339Nano, fields["target_time"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: parse target_time: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: parse created_at: %w", err)
	}
	nextRetryAt, err := parseTimeOrZero(fields["next_retry_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: parse next_retry_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("corrupt delivery record: parse attempts: %w", err)
	}

	return &Delivery{
		ID:          fields["id"],
		Identity:    fields["identity"],
		PayloadRef:  fields["payload_ref"],
		Channel:     channel,
		Destination: fields["destination"],
		TargetTime:  targetTime,
		Recurrence:  recurrence,
		Status:      status,
		Attempts:    attempts,
		NextRetryAt: nextRetryAt,
		LastError:   fields["last_error"],
		CreatedAt:   createdAt,
	}, nil
}

func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimeOrZero(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
