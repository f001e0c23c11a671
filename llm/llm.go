// Package llm declares the boundary contract the orchestration core requires
// of its LLM provider collaborator (spec §6): plain-text completion and
// schema-constrained structured completion. Concrete providers (Anthropic,
// OpenAI, Bedrock — out of scope per spec §1) implement Service; the core
// only ever depends on this interface.
package llm

import (
	"context"
	"errors"
)

// ModelConfig names which model a call should target and its sampling
// parameters. Kept provider-agnostic; a concrete Service implementation
// maps these onto its own request shape.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TimeoutMS   int
}

// Service is the completion contract every node that calls an LLM depends
// on (spec §6 "LLM service contract").
type Service interface {
	// Complete returns free-text completion for prompt.
	Complete(ctx context.Context, prompt string, cfg ModelConfig) (string, error)
	// CompleteStructured returns a JSON value conforming to schema (a
	// compiled JSON Schema document, opaque to this interface).
	CompleteStructured(ctx context.Context, prompt string, cfg ModelConfig, schema any) (map[string]any, error)
}

// ErrTimeout is the sentinel a Service implementation must wrap (via
// errors.Is) when a call exceeds its deadline, so callers can mark the
// failure RETRIABLE without provider-specific error inspection (spec §6:
// "Timeouts raise a recognized timeout error so the classifier can mark
// RETRIABLE").
var ErrTimeout = errors.New("llm: request timed out")

// IsTimeout reports whether err is (or wraps) ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
