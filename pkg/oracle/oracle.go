package oracle

import (
	"context"
)

// Options holds configuration for a single model call.
type Options struct {
	Model         string   // Model identifier to use for the call
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
}

// Option is a functional option for configuring a model call.
type Option func(*Options)

// WithModel returns an Option that sets the model to use.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithSystemPrompts returns an Option that sets the system prompts
// to prepend to the request.
func WithSystemPrompts(prompts ...string) Option {
	return func(o *Options) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns an Option that sets the sampling temperature.
// Higher values produce more random outputs, lower values make outputs
// more focused and deterministic.
func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// Usage contains token and latency accounting from model calls.
type Usage struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// Client is the narrow interface the reconstruction pipeline needs from a
// language model backend. Implementations wrap provider SDKs and translate
// provider failures into the error classes in errors.go.
type Client interface {
	// Complete sends a single-turn prompt and returns the reply as text.
	Complete(ctx context.Context, prompt string, opts ...Option) (string, error)

	// CompleteStructured sends a prompt with a JSON schema derived from out
	// and unmarshals the reply into it. Replies that cannot be parsed even
	// after repair are reported as ErrMalformedOutput.
	CompleteStructured(ctx context.Context, name string, description string, prompt string, out any, opts ...Option) error

	// Embed returns the embedding vector for the given input text.
	Embed(ctx context.Context, input []byte) ([]float32, error)

	// GetUsage returns accumulated usage since the last ResetUsage.
	GetUsage() Usage
	ResetUsage()
}
