package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

const defaultDimensions = 1536

// Embed creates a vector embedding for the given input text using the
// configured embedding model. Empty input yields a zero vector without a
// network call.
func (c *OpenAIOracle) Embed(ctx context.Context, input []byte) ([]float32, error) {
	dim := util.GetEnvInt("ORACLE_EMBED_DIM", defaultDimensions)
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(string(input))},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := c.client.Embeddings.New(ctx, body)
	if err != nil {
		return nil, classifyErr(err)
	}
	duration := time.Since(start).Milliseconds()

	c.modifyUsage(oracle.Usage{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  duration,
	})

	if len(response.Data) != 1 {
		return nil, fmt.Errorf("%w: embedding response size mismatch: got %d want 1", oracle.ErrMalformedOutput, len(response.Data))
	}

	vec := make([]float32, 0, dim)
	for _, v := range response.Data[0].Embedding {
		if len(vec) >= dim {
			break
		}
		vec = append(vec, float32(v))
	}
	if len(vec) < dim {
		padded := make([]float32, dim)
		copy(padded, vec)
		vec = padded
	}
	return vec, nil
}
