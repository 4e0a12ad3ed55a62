package ollama

import (
	"context"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

const defaultDimensions = 1024

// Embed creates a vector embedding for the given input text using the
// configured embedding model on Ollama. Empty input yields a zero vector
// without a network call.
func (c *OllamaOracle) Embed(ctx context.Context, input []byte) ([]float32, error) {
	dim := util.GetEnvInt("ORACLE_EMBED_DIM", defaultDimensions)
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}

	res, err := c.client.Embed(ctx, req)
	if err != nil {
		return nil, classifyErr(err)
	}

	c.modifyUsage(oracle.Usage{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	out := make([]float32, 0, dim)
	for _, v := range res.Embeddings {
		for _, val := range v {
			if len(out) >= dim {
				break
			}
			out = append(out, float32(val))
		}
	}
	if len(out) < dim {
		padded := make([]float32, dim)
		copy(padded, out)
		out = padded
	}
	return out, nil
}
