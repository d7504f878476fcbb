package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pundora/punserve/pkg/cache"
	"github.com/pundora/punserve/pkg/config"
	"github.com/pundora/punserve/pkg/generation"
	"github.com/pundora/punserve/pkg/notify"
	"github.com/pundora/punserve/pkg/ratelimit"
	"github.com/pundora/punserve/pkg/scheduler"
)

// server holds the HTTP surface of the control plane.
type server struct {
	cfg         *config.Config
	cache       *cache.Manager
	gate        ratelimit.Gate
	generator   generation.Service
	synthesizer generation.Synthesizer
	scheduler   *scheduler.Scheduler
	logger      zerolog.Logger
}

func newServer(cfg *config.Config, cacheManager *cache.Manager, gate ratelimit.Gate,
	generator generation.Service, synthesizer generation.Synthesizer,
	sched *scheduler.Scheduler, logger zerolog.Logger) *server {
	return &server{
		cfg:         cfg,
		cache:       cacheManager,
		gate:        gate,
		generator:   generator,
		synthesizer: synthesizer,
		scheduler:   sched,
		logger:      logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/jokes", s.handleGetJoke)
	mux.HandleFunc("GET /v1/jokes/audio", s.handleGetJokeAudio)
	mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /v1/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /v1/schedules", s.handleListSchedules)
	mux.HandleFunc("GET /v1/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("DELETE /v1/schedules/{id}", s.handleCancelSchedule)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// identity resolves the rate-limit identity for a request: the X-Identity
// header when present, the client address otherwise.
func identity(r *http.Request) string {
	if id := r.Header.Get("X-Identity"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// admit runs the rate limit gate and writes the 429 response on denial.
// Returns false when the request must not proceed.
func (s *server) admit(w http.ResponseWriter, r *http.Request) bool {
	decision, err := s.gate.Check(r.Context(), identity(r))
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
		return false
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds()+1)))
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// parseJokeParams validates the generation parameters shared by the joke
// endpoints. Missing category and humor_level fall back to defaults.
func parseJokeParams(r *http.Request) (generation.Request, error) {
	category := generation.CategoryGeneral
	if v := r.URL.Query().Get("category"); v != "" {
		parsed, err := generation.ParseCategory(v)
		if err != nil {
			return generation.Request{}, err
		}
		category = parsed
	}

	humor := generation.HumorMedium
	if v := r.URL.Query().Get("humor_level"); v != "" {
		parsed, err := generation.ParseHumorLevel(v)
		if err != nil {
			return generation.Request{}, err
		}
		humor = parsed
	}

	return generation.Request{
		Category:   category,
		HumorLevel: humor,
		Prompt:     strings.TrimSpace(r.URL.Query().Get("prompt")),
	}, nil
}

// lookupContent serves a generation request through the cache. The second
// return value reports whether the content came from the cache.
func (s *server) lookupContent(r *http.Request, req generation.Request) (*generation.Content, bool, error) {
	ctx := r.Context()
	key := cache.NewKey(string(req.Category), string(req.HumorLevel), req.Prompt)

	if cached, err := s.cache.Get(ctx, key); err == nil {
		var content generation.Content
		if err := json.Unmarshal(cached, &content); err == nil {
			return &content, true, nil
		}
		s.cache.Invalidate(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, err
	}

	content, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if encoded, err := json.Marshal(content); err == nil {
		s.cache.Put(ctx, key, encoded, s.cfg.Cache.DefaultTTL)
	}
	return content, false, nil
}

func (s *server) handleGetJoke(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	req, err := parseJokeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, hit, err := s.lookupContent(r, req)
	if err != nil {
		s.logger.Error().Err(err).Msg("Joke request failed")
		s.writeError(w, http.StatusBadGateway, "content generation unavailable")
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	s.writeJSON(w, http.StatusOK, content)
}

func (s *server) handleGetJokeAudio(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	req, err := parseJokeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	voice := generation.VoiceDad
	if v := r.URL.Query().Get("voice"); v != "" {
		parsed, err := generation.ParseVoice(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		voice = parsed
	}

	content, _, err := s.lookupContent(r, req)
	if err != nil {
		s.logger.Error().Err(err).Msg("Joke request failed")
		s.writeError(w, http.StatusBadGateway, "content generation unavailable")
		return
	}

	audio, err := s.synthesizer.Synthesize(r.Context(), content.Text, voice)
	if err != nil {
		s.logger.Error().Err(err).Msg("Synthesis failed")
		s.writeError(w, http.StatusBadGateway, "speech synthesis unavailable")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cache.Stats())
}

type createScheduleRequest struct {
	Identity    string `json:"identity"`
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
	TargetTime  string `json:"target_time"`
	Recurrence  string `json:"recurrence"`
	Category    string `json:"category"`
	HumorLevel  string `json:"humor_level"`
	Prompt      string `json:"prompt"`
}

func (s *server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	channel, err := notify.ParseChannel(body.Channel)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recurrence, err := scheduler.ParseRecurrence(body.Recurrence)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetTime, err := time.Parse(time.RFC3339, body.TargetTime)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "target_time must be RFC 3339")
		return
	}

	ref := payloadRef{
		Category:   generation.CategoryGeneral,
		HumorLevel: generation.HumorMedium,
		Prompt:     strings.TrimSpace(body.Prompt),
	}
	if body.Category != "" {
		if ref.Category, err = generation.ParseCategory(body.Category); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if body.HumorLevel != "" {
		if ref.HumorLevel, err = generation.ParseHumorLevel(body.HumorLevel); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	encodedRef, err := encodePayloadRef(ref)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "encode payload")
		return
	}

	ident := body.Identity
	if ident == "" {
		ident = identity(r)
	}

	d, err := s.scheduler.Create(r.Context(), scheduler.CreateRequest{
		Identity:    ident,
		PayloadRef:  encodedRef,
		Channel:     channel,
		Destination: body.Destination,
		TargetTime:  targetTime,
		Recurrence:  recurrence,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.scheduler.ListPending(r.Context(), identity(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("List schedules failed")
		s.writeError(w, http.StatusInternalServerError, "list schedules")
		return
	}
	if list == nil {
		list = []*scheduler.Delivery{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	d, err := s.scheduler.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, scheduler.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Get schedule failed")
		s.writeError(w, http.StatusInternalServerError, "get schedule")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	err := s.scheduler.Cancel(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "schedule not found")
	case errors.Is(err, scheduler.ErrConflict):
		s.writeError(w, http.StatusConflict, "schedule is in flight or already finished")
	case err != nil:
		s.logger.Error().Err(err).Msg("Cancel schedule failed")
		s.writeError(w, http.StatusInternalServerError, "cancel schedule")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
