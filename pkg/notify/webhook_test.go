package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testPayload() Payload {
	return Payload{
		DeliveryID: "d-123",
		Content:    "What do you call a fish wearing a bowtie? Sofishticated.",
		Category:   "animals",
		HumorLevel: "medium",
		Source:     "openai",
		Timestamp:  time.Now(),
	}
}

func TestWebhook_Send(t *testing.T) {
	var received Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Delivery-ID"); got != "d-123" {
			t.Errorf("X-Delivery-ID = %q, want d-123", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh := NewWebhook(testLogger())
	if err := wh.Send(context.Background(), server.URL, testPayload()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received.DeliveryID != "d-123" {
		t.Errorf("payload delivery_id = %q, want d-123", received.DeliveryID)
	}
	if received.Content == "" {
		t.Error("payload content missing")
	}
}

func TestWebhook_Send_Classification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantErr       bool
		wantPermanent bool
	}{
		{"200 ok", http.StatusOK, false, false},
		{"204 no content", http.StatusNoContent, false, false},
		{"400 bad request", http.StatusBadRequest, true, true},
		{"404 not found", http.StatusNotFound, true, true},
		{"500 server error", http.StatusInternalServerError, true, false},
		{"503 unavailable", http.StatusServiceUnavailable, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			wh := NewWebhook(testLogger())
			err := wh.Send(context.Background(), server.URL, testPayload())

			if (err != nil) != tt.wantErr {
				t.Fatalf("Send error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.Is(err, ErrPermanent) != tt.wantPermanent {
				t.Errorf("ErrPermanent = %v, want %v (err: %v)",
					errors.Is(err, ErrPermanent), tt.wantPermanent, err)
			}
		})
	}
}

func TestWebhook_Send_InvalidDestination(t *testing.T) {
	wh := NewWebhook(testLogger())

	for _, dest := range []string{"", "not a url", "ftp://example.com/hook"} {
		err := wh.Send(context.Background(), dest, testPayload())
		if !errors.Is(err, ErrPermanent) {
			t.Errorf("Send(%q): expected ErrPermanent, got %v", dest, err)
		}
	}
}

func TestWebhook_Send_NetworkErrorIsTransient(t *testing.T) {
	wh := NewWebhook(testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := wh.Send(ctx, "http://127.0.0.1:1/hook", testPayload())
	if err == nil {
		t.Fatal("expected error for unreachable destination")
	}
	if errors.Is(err, ErrPermanent) {
		t.Error("network error must be transient, got ErrPermanent")
	}
}
