package generation

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

func TestHTTPService_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/joke" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Category != CategoryPuns {
			t.Errorf("category = %q, want %q", req.Category, CategoryPuns)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Content{
			Text:       "I used to be a banker but I lost interest.",
			Category:   req.Category,
			HumorLevel: req.HumorLevel,
			Source:     "openai",
		})
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, 5*time.Second, testLogger())

	content, err := svc.Generate(context.Background(), Request{
		Category:   CategoryPuns,
		HumorLevel: HumorMedium,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if content.Text == "" {
		t.Error("expected non-empty content text")
	}
	if content.Source != "openai" {
		t.Errorf("source = %q, want %q", content.Source, "openai")
	}
}

func TestHTTPService_Generate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, 5*time.Second, testLogger())

	_, err := svc.Generate(context.Background(), Request{
		Category:   CategoryGeneral,
		HumorLevel: HumorMild,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPService_Generate_Unreachable(t *testing.T) {
	svc := NewHTTPService("http://127.0.0.1:1", 500*time.Millisecond, testLogger())

	_, err := svc.Generate(context.Background(), Request{
		Category:   CategoryGeneral,
		HumorLevel: HumorMild,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPService_Synthesize(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04} // ID3 header prefix

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Voice != VoiceRobot {
			t.Errorf("voice = %q, want %q", req.Voice, VoiceRobot)
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, 5*time.Second, testLogger())

	got, err := svc.Synthesize(context.Background(), "beep boop", VoiceRobot)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(got) != string(audio) {
		t.Errorf("audio mismatch: got %v, want %v", got, audio)
	}
}
