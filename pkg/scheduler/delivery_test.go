package scheduler

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	valid := []string{"pending", "dispatching", "delivered", "failed_retry", "failed_terminal", "cancelled"}
	for _, s := range valid {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q) error: %v", s, err)
		}
	}
	for _, s := range []string{"", "done", "PENDING"} {
		if _, err := ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) should fail", s)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusDispatching, false},
		{StatusFailedRetry, false},
		{StatusDelivered, true},
		{StatusFailedTerminal, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseRecurrence(t *testing.T) {
	tests := []struct {
		input   string
		want    Recurrence
		wantErr bool
	}{
		{"", RecurrenceNone, false},
		{"none", RecurrenceNone, false},
		{"daily", RecurrenceDaily, false},
		{"weekly", RecurrenceWeekly, false},
		{"monthly", RecurrenceMonthly, false},
		{"yearly", "", true},
		{"Daily", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRecurrence(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRecurrence(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRecurrence(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRecurrence_Next(t *testing.T) {
	target := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		recurrence Recurrence
		target     time.Time
		want       time.Time
		wantOK     bool
	}{
		{"none", RecurrenceNone, target, time.Time{}, false},
		{"daily", RecurrenceDaily, target,
			time.Date(2025, 3, 11, 8, 30, 0, 0, time.UTC), true},
		{"weekly", RecurrenceWeekly, target,
			time.Date(2025, 3, 17, 8, 30, 0, 0, time.UTC), true},
		{"monthly", RecurrenceMonthly, target,
			time.Date(2025, 4, 10, 8, 30, 0, 0, time.UTC), true},
		{"monthly jan 31 clamps to feb 28", RecurrenceMonthly,
			time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC),
			time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC), true},
		{"monthly jan 31 leap year clamps to feb 29", RecurrenceMonthly,
			time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), true},
		{"monthly clamped day carries forward", RecurrenceMonthly,
			time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 28, 9, 0, 0, 0, time.UTC), true},
		{"monthly dec rolls into next year", RecurrenceMonthly,
			time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.recurrence.Next(tt.target)
			if ok != tt.wantOK {
				t.Fatalf("Next ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelivery_DueAt(t *testing.T) {
	target := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	retry := target.Add(5 * time.Minute)

	d := &Delivery{TargetTime: target, Status: StatusPending}
	if got := d.DueAt(); !got.Equal(target) {
		t.Errorf("pending DueAt = %v, want target %v", got, target)
	}

	d.Status = StatusFailedRetry
	d.NextRetryAt = retry
	if got := d.DueAt(); !got.Equal(retry) {
		t.Errorf("failed_retry DueAt = %v, want retry %v", got, retry)
	}
}
