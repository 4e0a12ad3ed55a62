package match

import (
	"context"
	"fmt"

	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// OracleSummarizer condenses the user query into a summary and keywords via
// the model.
type OracleSummarizer struct {
	client oracle.Client
}

func NewOracleSummarizer(client oracle.Client) *OracleSummarizer {
	return &OracleSummarizer{client: client}
}

func (s *OracleSummarizer) Summarize(ctx context.Context, query string) (Summary, error) {
	var summary Summary
	err := s.client.CompleteStructured(
		ctx,
		"query_summary",
		"Summarization and search keywords for the query",
		fmt.Sprintf(oracle.KeywordPrompt, query),
		&summary,
	)
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Enrich attaches the summarizer's keywords to the query. When
// summarization fails the query passes through unchanged, so keyword-free
// strategies still run.
func Enrich(ctx context.Context, summarizer Summarizer, query Query) Query {
	if summarizer == nil || len(query.Keywords) > 0 {
		return query
	}
	summary, err := summarizer.Summarize(ctx, query.Text)
	if err != nil {
		logger.Warn("query summarization failed, matching on raw query", "err", err)
		return query
	}
	query.Keywords = summary.Keywords
	return query
}
