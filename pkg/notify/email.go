package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Email is a placeholder adapter: it validates the address and logs the
// delivery. Wiring a real mail provider happens behind this same interface.
type Email struct {
	logger zerolog.Logger
}

// NewEmail creates the email adapter.
func NewEmail(logger zerolog.Logger) *Email {
	return &Email{logger: logger}
}

// Send logs the delivery. A destination without an @ is a permanent
// failure.
func (e *Email) Send(ctx context.Context, destination string, payload Payload) error {
	if !strings.Contains(destination, "@") {
		return fmt.Errorf("%w: invalid email address %q", ErrPermanent, destination)
	}

	e.logger.Info().
		Str("delivery_id", payload.DeliveryID).
		Str("destination", destination).
		Str("category", payload.Category).
		Msg("Email delivery sent")
	return nil
}
