package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// OllamaOracle implements oracle.Client against a locally-hosted Ollama
// server.
type OllamaOracle struct {
	model          string
	embeddingModel string
	temperature    float64

	usageLock sync.Mutex
	usage     oracle.Usage

	baseURL    *url.URL
	httpClient *http.Client

	client *api.Client
}

// NewOllamaOracleParams contains configuration for creating a new
// OllamaOracle.
type NewOllamaOracleParams struct {
	Model          string
	EmbeddingModel string
	Temperature    float64

	BaseURL string
	APIKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaOracle creates a new Ollama-based client. It connects to the
// server at BaseURL, or the default local server when BaseURL is empty.
func NewOllamaOracle(params NewOllamaOracleParams) (*OllamaOracle, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.APIKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.APIKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	cli := api.NewClient(u, httpClient)

	return &OllamaOracle{
		model:          params.Model,
		embeddingModel: params.EmbeddingModel,
		temperature:    params.Temperature,

		usageLock: sync.Mutex{},
		usage:     oracle.Usage{},

		baseURL:    u,
		httpClient: httpClient,

		client: cli,
	}, nil
}

func (c *OllamaOracle) modifyUsage(usage oracle.Usage) {
	c.usageLock.Lock()
	defer c.usageLock.Unlock()

	c.usage.InputTokens += usage.InputTokens
	c.usage.OutputTokens += usage.OutputTokens
	c.usage.TotalTokens += usage.TotalTokens
	c.usage.DurationMs += usage.DurationMs
}

// GetUsage returns accumulated usage since the last ResetUsage.
func (c *OllamaOracle) GetUsage() oracle.Usage {
	c.usageLock.Lock()
	defer c.usageLock.Unlock()

	return c.usage
}

// ResetUsage zeroes the accumulated usage counters.
func (c *OllamaOracle) ResetUsage() {
	c.usageLock.Lock()
	defer c.usageLock.Unlock()

	c.usage = oracle.Usage{}
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", oracle.ErrTransient, err)
		}
		return err
	}

	return fmt.Errorf("%w: %v", oracle.ErrTransient, err)
}
