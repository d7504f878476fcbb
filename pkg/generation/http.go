package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPService talks to the generation/synthesis service over HTTP.
// It implements both Service and Synthesizer.
type HTTPService struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPService creates a client for the generation service at baseURL.
func NewHTTPService(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPService {
	return &HTTPService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type generateRequest struct {
	Category     Category   `json:"category"`
	HumorLevel   HumorLevel `json:"humor_level"`
	CustomPrompt string     `json:"custom_prompt,omitempty"`
}

// Generate requests a piece of content from the generation service.
// No retry happens here: the serving path is interactive and the cache
// fronts this call.
func (s *HTTPService) Generate(ctx context.Context, req Request) (*Content, error) {
	body, err := json.Marshal(generateRequest{
		Category:     req.Category,
		HumorLevel:   req.HumorLevel,
		CustomPrompt: req.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/joke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var content Content
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}

	s.logger.Debug().
		Str("category", string(req.Category)).
		Str("humor_level", string(req.HumorLevel)).
		Dur("duration", time.Since(start)).
		Msg("Content generated")

	return &content, nil
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice Voice  `json:"voice"`
}

// Synthesize renders text to audio bytes via the synthesis service.
func (s *HTTPService) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesize response: %w", err)
	}

	return audio, nil
}
