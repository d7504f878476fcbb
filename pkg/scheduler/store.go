package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound indicates the delivery id is unknown.
	ErrNotFound = errors.New("delivery not found")

	// ErrConflict indicates the delivery is not in a cancellable state:
	// it is in flight or already terminal.
	ErrConflict = errors.New("delivery not in a cancellable state")
)

// Store persists scheduled deliveries. Status transitions out of pending
// and failed_retry use compare-and-set so the same occurrence can never be
// dispatched twice.
type Store interface {
	// Create persists a new delivery.
	Create(ctx context.Context, d *Delivery) error

	// Get returns the delivery with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Delivery, error)

	// Due returns up to limit deliveries whose due time has arrived:
	// pending records past their target time and failed_retry records
	// whose backoff has elapsed, ordered by due time.
	Due(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)

	// ClaimDispatching atomically moves the delivery from the given
	// status to dispatching. Returns false when the record is no longer
	// in that status (already claimed, cancelled, or updated).
	ClaimDispatching(ctx context.Context, id string, from Status) (bool, error)

	// Cancel atomically moves a pending delivery to cancelled. Returns
	// ErrConflict when the delivery is in any other state.
	Cancel(ctx context.Context, id string) error

	// Update writes the dispatcher's result for a claimed delivery.
	Update(ctx context.Context, d *Delivery) error

	// ListPending returns the identity's deliveries that have not yet
	// reached a terminal state, ordered by due time.
	ListPending(ctx context.Context, identity string) ([]*Delivery, error)
}

// MemoryStore is the in-memory Store used for tests and for running
// without Redis. Delivery state does not survive a restart.
type MemoryStore struct {
	mu         sync.Mutex
	deliveries map[string]*Delivery
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{deliveries: make(map[string]*Delivery)}
}

func (s *MemoryStore) Create(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Delivery
	for _, d := range s.deliveries {
		switch d.Status {
		case StatusPending:
			if !d.TargetTime.After(now) {
				due = append(due, d.Clone())
			}
		case StatusFailedRetry:
			if !d.NextRetryAt.After(now) {
				due = append(due, d.Clone())
			}
		}
	}

	sortByDueAt(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) ClaimDispatching(_ context.Context, id string, from Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return false, ErrNotFound
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = StatusDispatching
	return true, nil
}

func (s *MemoryStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != StatusPending {
		return ErrConflict
	}
	d.Status = StatusCancelled
	return nil
}

func (s *MemoryStore) Update(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID]; !ok {
		return ErrNotFound
	}
	s.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, identity string) ([]*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Delivery
	for _, d := range s.deliveries {
		if d.Identity == identity && !d.Status.Terminal() {
			out = append(out, d.Clone())
		}
	}
	sortByDueAt(out)
	return out, nil
}

func sortByDueAt(ds []*Delivery) {
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].DueAt().Before(ds[j].DueAt())
	})
}
