package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pundora/punserve/pkg/notify"
)

// PayloadResolver loads the content behind a delivery's payload reference.
// A transient error makes the attempt retryable; wrap notify.ErrPermanent
// to fail the delivery terminally.
type PayloadResolver interface {
	Resolve(ctx context.Context, ref string) (notify.Payload, error)
}

// DispatcherConfig controls the poll loop and retry policy.
type DispatcherConfig struct {
	// PollInterval is how often the dispatcher scans for due deliveries.
	PollInterval time.Duration

	// MaxConcurrent bounds the number of in-flight dispatch attempts.
	MaxConcurrent int

	// MaxAttempts is the attempt budget per occurrence before the
	// delivery is failed terminally.
	MaxAttempts int

	// BaseBackoff is the delay after the first transient failure. Each
	// further failure doubles it, up to MaxBackoff, with +/-20% jitter.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// AttemptTimeout bounds a single resolve-and-send attempt.
	AttemptTimeout time.Duration

	// BatchLimit caps how many due deliveries one tick processes.
	BatchLimit int
}

// Dispatcher drives due deliveries through their channel adapters.
type Dispatcher struct {
	store    Store
	resolver PayloadResolver
	registry *notify.Registry
	config   DispatcherConfig
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher. Run starts the poll loop.
func NewDispatcher(store Store, resolver PayloadResolver, registry *notify.Registry, config DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if store == nil {
		panic("store cannot be nil")
	}
	if resolver == nil {
		panic("resolver cannot be nil")
	}
	if registry == nil {
		panic("registry cannot be nil")
	}
	return &Dispatcher{
		store:    store,
		resolver: resolver,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// Run polls for due deliveries until the context is cancelled. In-flight
// attempts from the current tick finish before Run returns.
func (dp *Dispatcher) Run(ctx context.Context) {
	dp.logger.Info().
		Dur("poll_interval", dp.config.PollInterval).
		Int("max_concurrent", dp.config.MaxConcurrent).
		Int("max_attempts", dp.config.MaxAttempts).
		Msg("Dispatcher started")

	ticker := time.NewTicker(dp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dp.logger.Info().Msg("Dispatcher stopped")
			return
		case <-ticker.C:
			if err := dp.Tick(ctx, time.Now().UTC()); err != nil {
				dp.logger.Error().Err(err).Msg("Dispatch tick failed")
			}
		}
	}
}

// Tick processes one batch of due deliveries. Each due record is claimed
// with a compare-and-set before any work happens, so concurrent pollers
// never dispatch the same occurrence twice. Tick returns after all attempts
// of the batch have finished.
func (dp *Dispatcher) Tick(ctx context.Context, now time.Time) error {
	due, err := dp.store.Due(ctx, now, dp.config.BatchLimit)
	if err != nil {
		return fmt.Errorf("scan due deliveries: %w", err)
	}
	DueBacklog.Set(float64(len(due)))
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dp.config.MaxConcurrent)

	for _, d := range due {
		claimed, err := dp.store.ClaimDispatching(ctx, d.ID, d.Status)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			dp.logger.Error().Err(err).Str("delivery_id", d.ID).Msg("Claim failed")
			continue
		}
		if !claimed {
			// Another poller or a cancel got there first
			continue
		}

		d := d
		d.Status = StatusDispatching
		g.Go(func() error {
			dp.attempt(gctx, d, now)
			return nil
		})
	}
	return g.Wait()
}

// attempt runs one resolve-and-send for a claimed delivery and writes the
// outcome back. Every claim consumes one unit of the attempt budget unless
// the failure is permanent, which fails the delivery immediately.
func (dp *Dispatcher) attempt(ctx context.Context, d *Delivery, now time.Time) {
	d.Attempts++

	err := dp.send(ctx, d)
	if err == nil {
		dp.complete(ctx, d, now)
		return
	}
	dp.fail(ctx, d, now, err)
}

func (dp *Dispatcher) send(ctx context.Context, d *Delivery) error {
	adapter, err := dp.registry.ForChannel(d.Channel)
	if err != nil {
		// Misconfigured channel: retrying cannot help
		return fmt.Errorf("%w: %v", notify.ErrPermanent, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, dp.config.AttemptTimeout)
	defer cancel()

	payload, err := dp.resolver.Resolve(attemptCtx, d.PayloadRef)
	if err != nil {
		return fmt.Errorf("resolve payload: %w", err)
	}
	payload.DeliveryID = d.ID

	return adapter.Send(attemptCtx, d.Destination, payload)
}

// complete marks the occurrence delivered, or reschedules the next
// occurrence for recurring deliveries. The next target is computed from the
// original target time so slow dispatches never drift the schedule.
func (dp *Dispatcher) complete(ctx context.Context, d *Delivery, now time.Time) {
	DispatchAttempts.WithLabelValues(string(d.Channel), "delivered").Inc()

	next, recurring := d.Recurrence.Next(d.TargetTime)
	if recurring {
		d.Status = StatusPending
		d.TargetTime = next
		d.Attempts = 0
		d.NextRetryAt = time.Time{}
		d.LastError = ""
	} else {
		d.Status = StatusDelivered
		d.NextRetryAt = time.Time{}
		d.LastError = ""
	}

	if err := dp.store.Update(ctx, d); err != nil {
		dp.logger.Error().Err(err).Str("delivery_id", d.ID).Msg("Result write failed")
		return
	}

	evt := dp.logger.Info().
		Str("delivery_id", d.ID).
		Str("channel", string(d.Channel)).
		Int("attempt", d.Attempts)
	if recurring {
		evt.Time("next_target", next).Msg("Delivery succeeded, next occurrence scheduled")
	} else {
		evt.Msg("Delivery succeeded")
	}
}

// fail records a failed attempt: permanent errors and an exhausted attempt
// budget end the delivery, anything else schedules a retry with backoff.
func (dp *Dispatcher) fail(ctx context.Context, d *Delivery, now time.Time, sendErr error) {
	d.LastError = sendErr.Error()

	switch {
	case errors.Is(sendErr, notify.ErrPermanent):
		DispatchAttempts.WithLabelValues(string(d.Channel), "permanent").Inc()
		d.Status = StatusFailedTerminal
		d.NextRetryAt = time.Time{}
		dp.logger.Error().
			Err(sendErr).
			Str("delivery_id", d.ID).
			Str("channel", string(d.Channel)).
			Msg("Delivery failed permanently")

	case d.Attempts >= dp.config.MaxAttempts:
		DispatchAttempts.WithLabelValues(string(d.Channel), "exhausted").Inc()
		d.Status = StatusFailedTerminal
		d.NextRetryAt = time.Time{}
		dp.logger.Error().
			Err(sendErr).
			Str("delivery_id", d.ID).
			Str("channel", string(d.Channel)).
			Int("attempt", d.Attempts).
			Msg("Delivery failed, attempt budget exhausted")

	default:
		DispatchAttempts.WithLabelValues(string(d.Channel), "retry").Inc()
		backoff := dp.backoffFor(d.Attempts)
		RetryBackoff.Observe(backoff.Seconds())
		d.Status = StatusFailedRetry
		d.NextRetryAt = now.Add(backoff)
		dp.logger.Warn().
			Err(sendErr).
			Str("delivery_id", d.ID).
			Str("channel", string(d.Channel)).
			Int("attempt", d.Attempts).
			Dur("backoff", backoff).
			Msg("Delivery failed, retry scheduled")
	}

	if err := dp.store.Update(ctx, d); err != nil {
		dp.logger.Error().Err(err).Str("delivery_id", d.ID).Msg("Result write failed")
	}
}

// backoffFor returns base * 2^(attempts-1) capped at MaxBackoff, with
// +/-20% jitter. The jitter band keeps consecutive delays strictly
// increasing: 1.2*2^n < 0.8*2^(n+1).
func (dp *Dispatcher) backoffFor(attempts int) time.Duration {
	backoff := dp.config.BaseBackoff
	for i := 1; i < attempts && backoff < dp.config.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > dp.config.MaxBackoff {
		backoff = dp.config.MaxBackoff
	}

	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(backoff) * jitter)
}
