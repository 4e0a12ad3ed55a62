package match

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

const StrategyJudged = "judged"

// DefaultTokenBudget bounds the paragraph text packed into one judging call.
const DefaultTokenBudget = 8192

type judgeSelection struct {
	Paragraphs []int   `json:"paragraphs"`
	Reason     string  `json:"reason"`
	Score      float64 `json:"score"`
}

// JudgedStrategy asks the model to read batches of paragraphs and select the
// relevant ones. Batches are sized by token budget so long documents stay
// inside the model context.
type JudgedStrategy struct {
	client      oracle.Client
	tokenBudget int
}

func NewJudgedStrategy(client oracle.Client, tokenBudget int) *JudgedStrategy {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &JudgedStrategy{
		client:      client,
		tokenBudget: tokenBudget,
	}
}

func (s *JudgedStrategy) Name() string {
	return StrategyJudged
}

func (s *JudgedStrategy) Evaluate(ctx context.Context, query Query, doc document.Document) ([]Candidate, error) {
	batches, err := batchParagraphs(doc.Paragraphs, s.tokenBudget)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, batch := range batches {
		selection, err := s.judgeBatch(ctx, query, batch)
		if err != nil {
			return nil, err
		}

		indices := validIndices(selection.Paragraphs, doc)
		if len(indices) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Strategy:   s.Name(),
			DocumentID: doc.ID,
			Indices:    indices,
			Score:      selection.Score,
			Rationale:  selection.Reason,
		})
	}

	return candidates, nil
}

func (s *JudgedStrategy) judgeBatch(ctx context.Context, query Query, batch []document.Paragraph) (judgeSelection, error) {
	listing := formatParagraphs(batch)

	var selection judgeSelection
	err := s.client.CompleteStructured(
		ctx,
		"paragraph_selection",
		"Paragraphs relevant to the query",
		fmt.Sprintf(oracle.JudgePrompt, query.Text, listing),
		&selection,
	)
	if errors.Is(err, oracle.ErrMalformedOutput) {
		// One stricter re-ask before giving up on the batch.
		logger.Warn("judge reply malformed, retrying with strict prompt", "paragraphs", len(batch))
		selection = judgeSelection{}
		err = s.client.CompleteStructured(
			ctx,
			"paragraph_selection",
			"Paragraphs relevant to the query",
			fmt.Sprintf(oracle.JudgeRetryPrompt, query.Text, listing),
			&selection,
		)
	}
	if err != nil {
		return judgeSelection{}, err
	}
	return selection, nil
}

// batchParagraphs packs paragraphs into consecutive groups whose combined
// token count stays within budget. A single oversized paragraph still forms
// its own batch.
func batchParagraphs(paragraphs []document.Paragraph, budget int) ([][]document.Paragraph, error) {
	var batches [][]document.Paragraph
	var current []document.Paragraph
	used := 0

	for _, p := range paragraphs {
		tokens, err := document.CountTokens(p.Text)
		if err != nil {
			return nil, err
		}
		if len(current) > 0 && used+tokens > budget {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, p)
		used += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

func formatParagraphs(paragraphs []document.Paragraph) string {
	var b strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "[%d] %s\n\n", p.Index, p.Text)
	}
	return strings.TrimSuffix(b.String(), "\n\n")
}

func validIndices(indices []int, doc document.Document) []int {
	seen := make(map[int]bool, len(indices))
	var out []int
	for _, idx := range indices {
		if seen[idx] {
			continue
		}
		if _, ok := doc.ParagraphByIndex(idx); !ok {
			logger.Warn("model selected unknown paragraph index", "document", doc.ID, "index", idx)
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}
