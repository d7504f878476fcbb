// Package scheduler manages deferred content deliveries: clients schedule a
// payload for a target time and channel, a background dispatcher picks due
// records up, pushes them through the channel adapter, and retries transient
// failures with exponential backoff. Recurring schedules advance themselves
// to the next occurrence after each successful delivery, so at any moment a
// recurring schedule is exactly one stored record.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pundora/punserve/pkg/notify"
)

// CreateRequest is a validated schedule request. Channel and Recurrence are
// expected to come from ParseChannel / ParseRecurrence at the API boundary.
type CreateRequest struct {
	Identity    string
	PayloadRef  string
	Channel     notify.Channel
	Destination string
	TargetTime  time.Time
	Recurrence  Recurrence
}

// Scheduler creates, cancels, and lists deliveries. Dispatching is the
// Dispatcher's job; the two share only the Store.
type Scheduler struct {
	store  Store
	logger zerolog.Logger
}

// New creates a Scheduler on the given store.
func New(store Store, logger zerolog.Logger) *Scheduler {
	if store == nil {
		panic("store cannot be nil")
	}
	return &Scheduler{store: store, logger: logger}
}

// Create persists a new pending delivery. A target time in the past is
// accepted and becomes due on the next poll.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*Delivery, error) {
	if req.Identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	if req.Destination == "" {
		return nil, fmt.Errorf("destination is required")
	}
	if req.TargetTime.IsZero() {
		return nil, fmt.Errorf("target time is required")
	}

	d := &Delivery{
		ID:          uuid.NewString(),
		Identity:    req.Identity,
		PayloadRef:  req.PayloadRef,
		Channel:     req.Channel,
		Destination: req.Destination,
		TargetTime:  req.TargetTime,
		Recurrence:  req.Recurrence,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	SchedulesCreated.Inc()
	s.logger.Info().
		Str("delivery_id", d.ID).
		Str("identity", d.Identity).
		Str("channel", string(d.Channel)).
		Time("target_time", d.TargetTime).
		Str("recurrence", string(d.Recurrence)).
		Msg("Delivery scheduled")
	return d, nil
}

// Cancel stops a pending delivery. Returns ErrConflict when the delivery is
// in flight or already terminal, ErrNotFound for unknown ids.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.store.Cancel(ctx, id); err != nil {
		return err
	}
	SchedulesCancelled.Inc()
	s.logger.Info().Str("delivery_id", id).Msg("Delivery cancelled")
	return nil
}

// Get returns a single delivery by id.
func (s *Scheduler) Get(ctx context.Context, id string) (*Delivery, error) {
	return s.store.Get(ctx, id)
}

// ListPending returns the identity's non-terminal deliveries ordered by due
// time.
func (s *Scheduler) ListPending(ctx context.Context, identity string) ([]*Delivery, error) {
	return s.store.ListPending(ctx, identity)
}
