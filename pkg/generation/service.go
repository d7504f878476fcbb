// Package generation defines the boundary to the external content-generation
// and voice-synthesis services. The control plane never generates content
// itself; it fronts these collaborators with caching and rate limiting.
package generation

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the generation service could not produce content.
// Degraded-mode fallback content is the service's own concern; callers see a
// single success/error contract.
var ErrUnavailable = errors.New("generation service unavailable")

// Category is a closed set of content categories.
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryPuns        Category = "puns"
	CategoryKnockKnock  Category = "knock-knock"
	CategoryWordplay    Category = "wordplay"
	CategoryDadClassics Category = "dad-classics"
	CategoryFood        Category = "food"
	CategoryAnimals     Category = "animals"
	CategoryTechnology  Category = "technology"
)

// ParseCategory validates a category string at the boundary.
// Unknown values are rejected here, not deep in the pipeline.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryGeneral, CategoryPuns, CategoryKnockKnock, CategoryWordplay,
		CategoryDadClassics, CategoryFood, CategoryAnimals, CategoryTechnology:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// HumorLevel is a closed set of humor intensities.
type HumorLevel string

const (
	HumorMild   HumorLevel = "mild"
	HumorMedium HumorLevel = "medium"
	HumorExtra  HumorLevel = "extra"
)

// ParseHumorLevel validates a humor level string at the boundary.
func ParseHumorLevel(s string) (HumorLevel, error) {
	switch HumorLevel(s) {
	case HumorMild, HumorMedium, HumorExtra:
		return HumorLevel(s), nil
	}
	return "", fmt.Errorf("unknown humor level %q", s)
}

// Voice is a closed set of synthesis voices.
type Voice string

const (
	VoiceDad      Voice = "dad"
	VoiceRobot    Voice = "robot"
	VoiceDramatic Voice = "dramatic"
	VoiceCheerful Voice = "cheerful"
)

// ParseVoice validates a voice string at the boundary.
func ParseVoice(s string) (Voice, error) {
	switch Voice(s) {
	case VoiceDad, VoiceRobot, VoiceDramatic, VoiceCheerful:
		return Voice(s), nil
	}
	return "", fmt.Errorf("unknown voice %q", s)
}

// Request describes a content generation request.
type Request struct {
	Category   Category
	HumorLevel HumorLevel

	// Prompt is an optional free-form steering prompt.
	Prompt string
}

// Content is a generated piece of content.
type Content struct {
	Text       string     `json:"joke"`
	Category   Category   `json:"category"`
	HumorLevel HumorLevel `json:"humor_level"`

	// Source identifies what produced the content (e.g. "openai", "fallback").
	Source string `json:"source"`
}

// Service generates content on demand.
type Service interface {
	Generate(ctx context.Context, req Request) (*Content, error)
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
