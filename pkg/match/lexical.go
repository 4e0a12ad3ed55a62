package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
)

const StrategyLexical = "lexical"

// LexicalStrategy selects paragraphs containing query keywords, compared
// case-insensitively. It produces one candidate per matching keyword so the
// provenance records which term hit.
type LexicalStrategy struct{}

func NewLexicalStrategy() *LexicalStrategy {
	return &LexicalStrategy{}
}

func (s *LexicalStrategy) Name() string {
	return StrategyLexical
}

func (s *LexicalStrategy) Evaluate(ctx context.Context, query Query, doc document.Document) ([]Candidate, error) {
	keywords := query.Keywords
	if len(keywords) == 0 {
		keywords = []string{query.Text}
	}

	var candidates []Candidate
	for _, keyword := range keywords {
		needle := strings.ToLower(strings.TrimSpace(keyword))
		if needle == "" {
			continue
		}

		var indices []int
		for _, p := range doc.Paragraphs {
			if strings.Contains(strings.ToLower(p.Text), needle) {
				indices = append(indices, p.Index)
			}
		}
		if len(indices) == 0 {
			continue
		}

		candidates = append(candidates, Candidate{
			Strategy:   s.Name(),
			DocumentID: doc.ID,
			Indices:    indices,
			Score:      1.0,
			Rationale:  fmt.Sprintf("keyword %q", keyword),
		})
	}

	return candidates, nil
}
