package match

import (
	"context"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
)

// Query is a user's information need, optionally enriched with keywords by a
// Summarizer before matching starts.
type Query struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords,omitempty"`
}

// Candidate is one strategy's claim that a set of paragraphs in a document
// is relevant to the query.
type Candidate struct {
	Strategy   string  `json:"strategy"`
	DocumentID string  `json:"document_id"`
	Indices    []int   `json:"indices"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Strategy evaluates a single document against a query. Implementations must
// only return paragraph indices that exist in the document.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, query Query, doc document.Document) ([]Candidate, error)
}

// Summary is a condensed form of the user query used to drive matching.
type Summary struct {
	Summarization string   `json:"summarization"`
	Keywords      []string `json:"key_words"`
}

// Summarizer condenses a raw user query into a summary and keywords.
type Summarizer interface {
	Summarize(ctx context.Context, query string) (Summary, error)
}
