package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SMS is a placeholder adapter: it validates the number shape and logs the
// delivery.
type SMS struct {
	logger zerolog.Logger
}

// NewSMS creates the SMS adapter.
func NewSMS(logger zerolog.Logger) *SMS {
	return &SMS{logger: logger}
}

// Send logs the delivery. An empty destination is a permanent failure.
func (s *SMS) Send(ctx context.Context, destination string, payload Payload) error {
	if destination == "" {
		return fmt.Errorf("%w: empty phone number", ErrPermanent)
	}

	s.logger.Info().
		Str("delivery_id", payload.DeliveryID).
		Str("destination", destination).
		Msg("SMS delivery sent")
	return nil
}
