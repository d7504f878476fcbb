// Package testutil provides testing utilities for punserve.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock generation endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGeneration is a configurable mock of the upstream generation service.
type MockGeneration struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount    int
	LastRequestBody []byte
}

// NewMockGeneration creates a new mock generation server. The default
// handlers return a fixed joke and empty audio.
func NewMockGeneration() *MockGeneration {
	mock := &MockGeneration{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGeneration) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGeneration) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGeneration) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestBody = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGeneration) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockGeneration) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJokeResponse configures the joke generation endpoint.
func (m *MockGeneration) SetJokeResponse(resp MockResponse) {
	m.SetResponse("/api/joke", resp)
}

// SetTTSResponse configures the speech synthesis endpoint.
func (m *MockGeneration) SetTTSResponse(resp MockResponse) {
	m.SetResponse("/api/tts", resp)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGeneration) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockGeneration) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/joke":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"joke":"Why don't skeletons fight each other? They don't have the guts.","category":"general","humor_level":"medium","source":"mock"}`))
	case "/api/tts":
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
