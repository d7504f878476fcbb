// Package notify implements the delivery channel adapters the dispatcher
// fans out to: webhook, email, and an SMS placeholder.
//
// Adapter errors are transient by default and trigger a retry. An adapter
// wraps an error with ErrPermanent when retrying cannot help (for example a
// malformed destination); such failures go straight to failed_terminal
// without consuming the retry budget.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks an adapter failure that a retry cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// Channel is a closed set of delivery channels.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelSMS     Channel = "sms"
)

// ParseChannel validates a channel string at the boundary.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelWebhook, ChannelSMS:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Payload is the content handed to an adapter. DeliveryID doubles as the
// deduplication key: adapters may be retried, so receivers can use it to
// drop duplicate deliveries.
type Payload struct {
	DeliveryID string    `json:"delivery_id"`
	Content    string    `json:"joke"`
	Category   string    `json:"category"`
	HumorLevel string    `json:"humor_level"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// Adapter delivers a payload to a destination.
type Adapter interface {
	Send(ctx context.Context, destination string, payload Payload) error
}

// Registry maps channels to their adapters.
type Registry struct {
	adapters map[Channel]Adapter
}

// NewRegistry creates a registry with the given channel adapters.
func NewRegistry(adapters map[Channel]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// ForChannel returns the adapter for channel.
func (r *Registry) ForChannel(c Channel) (Adapter, error) {
	a, ok := r.adapters[c]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %q", c)
	}
	return a, nil
}
