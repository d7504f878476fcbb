package scheduler

import (
	"fmt"
	"time"

	"github.com/pundora/punserve/pkg/notify"
)

// Status is the delivery state machine state.
//
//	pending --due & claimed--> dispatching
//	dispatching --adapter success--> delivered
//	dispatching --transient failure, attempts < max--> failed_retry --backoff elapsed--> dispatching
//	dispatching --transient failure, attempts == max--> failed_terminal
//	dispatching --permanent adapter failure--> failed_terminal
//	pending --cancel--> cancelled
//	delivered (recurring) --next occurrence computed--> pending
type Status string

const (
	StatusPending        Status = "pending"
	StatusDispatching    Status = "dispatching"
	StatusDelivered      Status = "delivered"
	StatusFailedRetry    Status = "failed_retry"
	StatusFailedTerminal Status = "failed_terminal"
	StatusCancelled      Status = "cancelled"
)

// ParseStatus validates a status string at the boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusDispatching, StatusDelivered,
		StatusFailedRetry, StatusFailedTerminal, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no further transitions are possible for this
// occurrence. A recurring delivery never reaches delivered: the dispatcher
// reschedules it back to pending in the same update.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusFailedTerminal, StatusCancelled:
		return true
	}
	return false
}

// Recurrence is a closed set of recurrence rules.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence validates a recurrence string at the boundary. The empty
// string means none.
func ParseRecurrence(s string) (Recurrence, error) {
	if s == "" {
		return RecurrenceNone, nil
	}
	switch Recurrence(s) {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return Recurrence(s), nil
	}
	return "", fmt.Errorf("unknown recurrence %q", s)
}

// Next computes the following occurrence from the occurrence that just
// succeeded. It advances from the original target time, never from the
// dispatch completion time, so slow deliveries do not drift the schedule.
// Returns false for non-recurring deliveries.
func (r Recurrence) Next(target time.Time) (time.Time, bool) {
	switch r {
	case RecurrenceDaily:
		return target.Add(24 * time.Hour), true
	case RecurrenceWeekly:
		return target.Add(7 * 24 * time.Hour), true
	case RecurrenceMonthly:
		return addMonthClamped(target), true
	}
	return time.Time{}, false
}

// addMonthClamped returns the same day-of-month in the next month, clamped
// to the last valid day when the next month is shorter (Jan 31 -> Feb 28/29).
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// Day 0 of month+2 is the last day of month+1
	lastDay := time.Date(year, month+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month+1, day, hour, min, sec, t.Nanosecond(), t.Location())
}

// Delivery is one scheduled content delivery. The dispatcher owns all
// status, attempt, and retry mutations; cancellation is the only other
// writer.
type Delivery struct {
	ID          string         `json:"id"`
	Identity    string         `json:"identity"`
	PayloadRef  string         `json:"payload_ref"`
	Channel     notify.Channel `json:"channel"`
	Destination string         `json:"destination"`
	TargetTime  time.Time      `json:"target_time"`
	Recurrence  Recurrence     `json:"recurrence"`
	Status      Status         `json:"status"`
	Attempts    int            `json:"attempts"`
	NextRetryAt time.Time      `json:"next_retry_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DueAt returns when this delivery should next be picked up: the retry time
// while backing off, the target time otherwise.
func (d *Delivery) DueAt() time.Time {
	if d.Status == StatusFailedRetry {
		return d.NextRetryAt
	}
	return d.TargetTime
}

// Clone returns a copy safe to mutate independently.
func (d *Delivery) Clone() *Delivery {
	c := *d
	return &c
}
