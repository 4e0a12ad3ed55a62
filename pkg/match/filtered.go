package match

import (
	"context"
	"fmt"
	"sort"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

const StrategyFiltered = "filtered"

// DefaultPrefilterLimit caps how many keyword-matched paragraphs are handed
// to the model for refinement.
const DefaultPrefilterLimit = 100

// FilteredStrategy runs a cheap keyword prefilter and asks the model to weed
// out the coincidental hits. It trades the judged strategy's full-document
// reads for one refinement call over a much smaller candidate set.
type FilteredStrategy struct {
	client         oracle.Client
	prefilterLimit int
}

func NewFilteredStrategy(client oracle.Client, prefilterLimit int) *FilteredStrategy {
	if prefilterLimit <= 0 {
		prefilterLimit = DefaultPrefilterLimit
	}
	return &FilteredStrategy{
		client:         client,
		prefilterLimit: prefilterLimit,
	}
}

func (s *FilteredStrategy) Name() string {
	return StrategyFiltered
}

func (s *FilteredStrategy) Evaluate(ctx context.Context, query Query, doc document.Document) ([]Candidate, error) {
	lexical, err := NewLexicalStrategy().Evaluate(ctx, query, doc)
	if err != nil {
		return nil, err
	}

	prefiltered := make(map[int]bool)
	for _, c := range lexical {
		for _, idx := range c.Indices {
			prefiltered[idx] = true
		}
	}
	if len(prefiltered) == 0 {
		return nil, nil
	}

	indices := make([]int, 0, len(prefiltered))
	for idx := range prefiltered {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	if len(indices) > s.prefilterLimit {
		indices = indices[:s.prefilterLimit]
	}

	batch := make([]document.Paragraph, 0, len(indices))
	for _, idx := range indices {
		p, _ := doc.ParagraphByIndex(idx)
		batch = append(batch, p)
	}

	var selection judgeSelection
	if err := s.client.CompleteStructured(
		ctx,
		"paragraph_refinement",
		"Keyword-matched paragraphs confirmed relevant to the query",
		fmt.Sprintf(oracle.RefinePrompt, query.Text, formatParagraphs(batch)),
		&selection,
	); err != nil {
		return nil, err
	}

	kept := validIndices(selection.Paragraphs, doc)
	// The refinement may only narrow the prefilter, never widen it.
	final := kept[:0]
	for _, idx := range kept {
		if prefiltered[idx] {
			final = append(final, idx)
		}
	}
	if len(final) == 0 {
		return nil, nil
	}

	return []Candidate{{
		Strategy:   s.Name(),
		DocumentID: doc.ID,
		Indices:    final,
		Score:      selection.Score,
		Rationale:  selection.Reason,
	}}, nil
}
