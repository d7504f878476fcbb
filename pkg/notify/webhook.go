package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// Webhook posts the payload as JSON to the destination URL.
type Webhook struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWebhook creates the webhook adapter. The per-attempt deadline comes
// from the dispatcher's context, so no client timeout is set here.
func NewWebhook(logger zerolog.Logger) *Webhook {
	return &Webhook{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Send posts the payload to destination. A malformed destination or a 4xx
// response is a permanent failure; network errors and 5xx responses are
// transient and will be retried by the dispatcher.
func (w *Webhook) Send(ctx context.Context, destination string, payload Payload) error {
	u, err := url.Parse(destination)
	if err != nil || u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: invalid webhook url %q", ErrPermanent, destination)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", payload.DeliveryID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		w.logger.Debug().Str("delivery_id", payload.DeliveryID).
			Str("destination", destination).Msg("Webhook delivered")
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The receiver rejected the request; retrying the same payload
		// cannot succeed.
		return fmt.Errorf("%w: webhook status %d", ErrPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
}
