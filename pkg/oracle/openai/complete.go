package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// Complete sends a single-turn prompt to the chat model and returns the
// generated reply as plain text.
//
// Example:
//
//	resp, err := client.Complete(ctx, "Summarize this article...")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp)
func (c *OpenAIOracle) Complete(
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

	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	response, err := c.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", classifyErr(err)
	}
	duration := time.Since(start).Milliseconds()

	c.modifyUsage(oracle.Usage{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", oracle.ErrMalformedOutput)
	}
	return response.Choices[0].Message.Content, nil
}

// CompleteStructured sends a prompt to the chat model and unmarshals the
// reply into out, using a JSON schema derived from out to enforce structure.
//
// Example:
//
//	var out selection
//	err := client.CompleteStructured(ctx, "selection", "relevant paragraphs", prompt, &out)
func (c *OpenAIOracle) CompleteStructured(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...oracle.Option,
) error {
	schema := oracle.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	options := oracle.Options{
		Model:       c.model,
		Temperature: c.temperature,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	start := time.Now()
	response, err := c.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return classifyErr(err)
	}
	duration := time.Since(start).Milliseconds()

	c.modifyUsage(oracle.Usage{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return fmt.Errorf("%w: no choices in response", oracle.ErrMalformedOutput)
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return fmt.Errorf("%w: empty response (finish_reason: %s)", oracle.ErrMalformedOutput, response.Choices[0].FinishReason)
	}
	return oracle.UnmarshalFlexible(message, out)
}
