package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pundora/punserve/pkg/cache"
	"github.com/pundora/punserve/pkg/generation"
	"github.com/pundora/punserve/pkg/notify"
)

// payloadRef is the generation request stored with a scheduled delivery.
// Content is produced at dispatch time so recurring deliveries carry fresh
// material instead of replaying one frozen joke.
type payloadRef struct {
	Category   generation.Category   `json:"category"`
	HumorLevel generation.HumorLevel `json:"humor_level"`
	Prompt     string                `json:"prompt,omitempty"`
}

func encodePayloadRef(ref payloadRef) (string, error) {
	b, err := json.Marshal(ref)
	if err != nil {
		return "", fmt.Errorf("encode payload ref: %w", err)
	}
	return string(b), nil
}

// payloadResolver turns a stored payload reference into deliverable content
// through the same cache-then-generate path the interactive API uses.
type payloadResolver struct {
	cache   *cache.Manager
	service generation.Service
	ttl     time.Duration
}

func newPayloadResolver(cacheManager *cache.Manager, service generation.Service, ttl time.Duration) *payloadResolver {
	return &payloadResolver{cache: cacheManager, service: service, ttl: ttl}
}

func (r *payloadResolver) Resolve(ctx context.Context, ref string) (notify.Payload, error) {
	var req payloadRef
	if err := json.Unmarshal([]byte(ref), &req); err != nil {
		// A ref that never parses will never parse on retry
		return notify.Payload{}, fmt.Errorf("%w: malformed payload ref: %v", notify.ErrPermanent, err)
	}

	content, err := r.lookup(ctx, req)
	if err != nil {
		return notify.Payload{}, err
	}

	return notify.Payload{
		Content:    content.Text,
		Category:   string(content.Category),
		HumorLevel: string(content.HumorLevel),
		Source:     content.Source,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (r *payloadResolver) lookup(ctx context.Context, req payloadRef) (*generation.Content, error) {
	key := cache.NewKey(string(req.Category), string(req.HumorLevel), req.Prompt)

	if cached, err := r.cache.Get(ctx, key); err == nil {
		var content generation.Content
		if err := json.Unmarshal(cached, &content); err == nil {
			return &content, nil
		}
		// Corrupt entry: drop it and regenerate
		r.cache.Invalidate(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, err
	}

	content, err := r.service.Generate(ctx, generation.Request{
		Category:   req.Category,
		HumorLevel: req.HumorLevel,
		Prompt:     req.Prompt,
	})
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(content); err == nil {
		r.cache.Put(ctx, key, encoded, r.ttl)
	}
	return content, nil
}
