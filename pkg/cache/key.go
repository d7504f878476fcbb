package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key identifies a cached generation result.
type Key struct {
	// Category is the content category (e.g. "puns").
	Category string

	// HumorLevel is the humor intensity (e.g. "medium").
	HumorLevel string

	// PromptHash is a short hash of the optional free-form prompt,
	// empty when no prompt was given.
	PromptHash string
}

// NewKey builds a cache key for a generation request. Free-form prompts are
// hashed so arbitrary caller input never becomes part of the key structure.
func NewKey(category, humorLevel, prompt string) Key {
	k := Key{
		Category:   category,
		HumorLevel: humorLevel,
	}
	if prompt != "" {
		k.PromptHash = hashPrompt(prompt)
	}
	return k
}

// String generates a deterministic cache key string.
// Format: joke:category:humor_level[:prompt_hash]
//
// Example:
//
//	joke:puns:medium
//	joke:general:extra:9f86d081884c7d65
func (k Key) String() string {
	parts := []string{"joke", k.Category, k.HumorLevel}
	if k.PromptHash != "" {
		parts = append(parts, k.PromptHash)
	}
	return strings.Join(parts, ":")
}

// hashPrompt returns the first 16 hex chars of the prompt's SHA-256.
func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}
