package match

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

const StrategyVector = "vector"

// DefaultVectorThreshold is the cosine similarity below which a paragraph is
// not considered a match.
const DefaultVectorThreshold = 0.35

// ParagraphHit is one stored paragraph scored against a query embedding.
type ParagraphHit struct {
	DocumentID string
	Index      int
	Similarity float64
}

// ParagraphSearcher looks up persisted paragraph embeddings near a query
// embedding, most similar first.
type ParagraphSearcher interface {
	SimilarParagraphs(ctx context.Context, documentIDs []string, embedding []float32, limit int32) ([]ParagraphHit, error)
}

// VectorStrategy selects paragraphs whose embedding is close to the query
// embedding. With a searcher it scores against embeddings persisted at
// ingestion; without one it embeds each paragraph through the oracle.
type VectorStrategy struct {
	client    oracle.Client
	search    ParagraphSearcher
	threshold float64
}

func NewVectorStrategy(client oracle.Client, search ParagraphSearcher, threshold float64) *VectorStrategy {
	if threshold <= 0 {
		threshold = DefaultVectorThreshold
	}
	return &VectorStrategy{
		client:    client,
		search:    search,
		threshold: threshold,
	}
}

func (s *VectorStrategy) Name() string {
	return StrategyVector
}

func (s *VectorStrategy) Evaluate(ctx context.Context, query Query, doc document.Document) ([]Candidate, error) {
	if len(doc.Paragraphs) == 0 {
		return nil, nil
	}

	queryVec, err := s.client.Embed(ctx, []byte(query.Text))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if s.search != nil {
		candidates, found, err := s.storedCandidates(ctx, queryVec, doc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			logger.Warn("stored similarity search failed, scoring in memory", "document", doc.ID, "err", err)
		} else if found {
			return candidates, nil
		}
	}

	type scored struct {
		index int
		sim   float64
	}
	var hits []scored
	for _, p := range doc.Paragraphs {
		vec, err := s.client.Embed(ctx, []byte(p.Text))
		if err != nil {
			return nil, fmt.Errorf("embed paragraph %d: %w", p.Index, err)
		}
		sim := cosineSimilarity(queryVec, vec)
		if sim >= s.threshold {
			hits = append(hits, scored{index: p.Index, sim: sim})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// Most similar first; ties keep document order.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].sim > hits[j].sim
	})

	indices := make([]int, len(hits))
	for i, h := range hits {
		indices[i] = h.index
	}

	return []Candidate{{
		Strategy:   s.Name(),
		DocumentID: doc.ID,
		Indices:    indices,
		Score:      hits[0].sim,
		Rationale:  fmt.Sprintf("cosine similarity >= %.2f", s.threshold),
	}}, nil
}

// storedCandidates scores the document against embeddings persisted at
// ingestion. found is false when the store holds no embeddings for the
// document, in which case the caller falls back to embedding in memory.
func (s *VectorStrategy) storedCandidates(ctx context.Context, queryVec []float32, doc document.Document) ([]Candidate, bool, error) {
	hits, err := s.search.SimilarParagraphs(ctx, []string{doc.ID}, queryVec, int32(len(doc.Paragraphs)))
	if err != nil {
		return nil, false, err
	}
	if len(hits) == 0 {
		return nil, false, nil
	}

	var indices []int
	best := 0.0
	for _, hit := range hits {
		if hit.Similarity < s.threshold {
			continue
		}
		indices = append(indices, hit.Index)
		if hit.Similarity > best {
			best = hit.Similarity
		}
	}
	if len(indices) == 0 {
		return nil, true, nil
	}

	return []Candidate{{
		Strategy:   s.Name(),
		DocumentID: doc.ID,
		Indices:    indices,
		Score:      best,
		Rationale:  fmt.Sprintf("stored cosine similarity >= %.2f", s.threshold),
	}}, true, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
