package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// contextWindow estimates the context size a prompt needs. Ollama defaults
// to a small num_ctx, so long prompts must request a larger window.
func contextWindow(prompt string) (int, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(prompt, nil, nil)) + 200, nil
}

// Complete sends a single-turn prompt and returns the reply as text.
func (c *OllamaOracle) Complete(
	ctx context.Context,
	prompt string,
	opts ...oracle.Option,
) (string, error) {
	options := oracle.Options{
		Model:       c.model,
		Temperature: c.temperature,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	tokens, err := contextWindow(prompt)
	if err != nil {
		return "", err
	}
	if tokens > 4096 {
		req.Options["num_ctx"] = tokens
	}

	var final api.ChatResponse
	if err := c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", classifyErr(err)
	}

	c.modifyUsage(oracle.Usage{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}

// CompleteStructured enforces a JSON schema derived from out and unmarshals
// the reply into it.
func (c *OllamaOracle) CompleteStructured(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...oracle.Option,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	schemaObj := oracle.GenerateSchema(out)
	formatBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return err
	}
	var format json.RawMessage = formatBytes

	options := oracle.Options{
		Model:       c.model,
		Temperature: c.temperature,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	tokens, err := contextWindow(prompt)
	if err != nil {
		return err
	}
	if tokens > 4096 {
		req.Options["num_ctx"] = tokens
	}

	var final api.ChatResponse
	if err := c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return classifyErr(err)
	}

	c.modifyUsage(oracle.Usage{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return oracle.UnmarshalFlexible(final.Message.Content, out)
}
