// Package llm provides completion-model client implementations.
package llm

import (
	"context"
	"errors"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// ErrRateLimited marks a provider rejection due to rate limiting.
// Callers inspect it with errors.Is and apply their own backoff policy.
var ErrRateLimited = errors.New("completion provider rate limited")

// ErrProvider marks every other provider-side completion failure:
// transport errors, non-2xx responses, empty results.
var ErrProvider = errors.New("completion provider failure")

// Params holds completion-model parameters for a single call.
type Params struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	BestOf           int
	Stop             []string
}

// Client is the interface that all completion providers implement.
// Complete takes the fully rendered prompt text; prompt assembly is the
// caller's job. Failures propagate — no retry happens at this layer.
type Client interface {
	// Complete sends a completion request and returns the generated text.
	Complete(ctx context.Context, prompt string, params Params) (string, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
