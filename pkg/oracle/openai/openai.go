package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// OpenAIOracle implements oracle.Client on top of the OpenAI API, or any
// endpoint speaking the same protocol.
//
// An OpenAIOracle should be created using NewOpenAIOracle.
type OpenAIOracle struct {
	model          string
	embeddingModel string
	temperature    float64

	usageLock sync.Mutex
	usage     oracle.Usage

	client *openai.Client
}

// NewOpenAIOracleParams defines the configuration for creating a new
// OpenAIOracle. BaseURL may be empty to use the public API.
type NewOpenAIOracleParams struct {
	Model          string
	EmbeddingModel string
	Temperature    float64

	BaseURL string
	APIKey  string
}

// NewOpenAIOracle creates an OpenAIOracle configured with the provided
// parameters.
//
// Example:
//
//	client := openai.NewOpenAIOracle(openai.NewOpenAIOracleParams{
//		Model:          "gpt-4o-mini",
//		EmbeddingModel: "text-embedding-3-small",
//		APIKey:         os.Getenv("ORACLE_API_KEY"),
//	})
func NewOpenAIOracle(params NewOpenAIOracleParams) *OpenAIOracle {
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)

	return &OpenAIOracle{
		model:          params.Model,
		embeddingModel: params.EmbeddingModel,
		temperature:    params.Temperature,

		usageLock: sync.Mutex{},
		usage:     oracle.Usage{},

		client: &client,
	}
}

func (c *OpenAIOracle) modifyUsage(usage oracle.Usage) {
	c.usageLock.Lock()
	defer c.usageLock.Unlock()

	c.usage.InputTokens += usage.InputTokens
	c.usage.OutputTokens += usage.OutputTokens
	c.usage.TotalTokens += usage.TotalTokens
	c.usage.DurationMs += usage.DurationMs
}

// GetUsage returns accumulated usage since the last ResetUsage.
func (c *OpenAIOracle) GetUsage() oracle.Usage {
	c.usageLock.Lock()
	defer c.usageLock.Unlock()

	return c.usage
}

// ResetUsage zeroes the accumulated usage counters.
func (c *OpenAIOracle) ResetUsage() {
	c.usageLock.Lock()
	defer c.usageLock.Unlock()

	c.usage = oracle.Usage{}
}

// classifyErr maps provider failures onto the oracle error classes so
// callers can decide whether to retry.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", oracle.ErrTransient, err)
		}
		return err
	}

	// Network-level failures carry no status code.
	return fmt.Errorf("%w: %v", oracle.ErrTransient, err)
}
