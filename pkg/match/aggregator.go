package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
)

// ErrAllStrategiesFailed is returned when no strategy produced a usable
// verdict. Matching will not proceed on an empty consensus.
var ErrAllStrategiesFailed = errors.New("all match strategies failed")

// Match is one paragraph selected by at least one strategy, with the names
// of the strategies that selected it.
type Match struct {
	DocumentID string   `json:"document_id"`
	Index      int      `json:"index"`
	Strategies []string `json:"strategies"`
}

// Result is the union of all strategy candidates over all documents.
type Result struct {
	Matches  []Match          `json:"matches"`
	Failures map[string]error `json:"-"`
}

// Aggregator fans a query out over the configured strategies and unions
// their candidates. A failing strategy is logged and skipped; the aggregate
// only errors when every strategy failed.
type Aggregator struct {
	strategies     []Strategy
	maxConcurrency int
}

func NewAggregator(strategies []Strategy, maxConcurrency int) *Aggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Aggregator{
		strategies:     strategies,
		maxConcurrency: maxConcurrency,
	}
}

// MatchAll evaluates every strategy against every document and unions the
// selected paragraphs. The context cancels all outstanding evaluations.
func (a *Aggregator) MatchAll(ctx context.Context, query Query, docs []document.Document) (Result, error) {
	if len(a.strategies) == 0 {
		return Result{}, fmt.Errorf("%w: no strategies configured", ErrAllStrategiesFailed)
	}

	type key struct {
		documentID string
		index      int
	}

	var mu sync.Mutex
	selected := make(map[key]map[string]bool)
	failures := make(map[string]error)
	succeeded := make(map[string]bool)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(a.maxConcurrency)

	for _, strategy := range a.strategies {
		for _, doc := range docs {
			eg.Go(func() error {
				candidates, err := strategy.Evaluate(ectx, query, doc)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return err
					}
					logger.Warn("match strategy failed", "strategy", strategy.Name(), "document", doc.ID, "err", err)
					if _, seen := failures[strategy.Name()]; !seen {
						failures[strategy.Name()] = err
					}
					return nil
				}

				succeeded[strategy.Name()] = true
				for _, c := range candidates {
					for _, idx := range c.Indices {
						k := key{documentID: c.DocumentID, index: idx}
						if selected[k] == nil {
							selected[k] = make(map[string]bool)
						}
						selected[k][c.Strategy] = true
					}
				}
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	if len(failures) > 0 && len(succeeded) == 0 {
		var first error
		for _, err := range failures {
			first = err
			break
		}
		return Result{Failures: failures}, fmt.Errorf("%w: %v", ErrAllStrategiesFailed, first)
	}

	matches := make([]Match, 0, len(selected))
	for k, strategies := range selected {
		names := make([]string, 0, len(strategies))
		for name := range strategies {
			names = append(names, name)
		}
		sort.Strings(names)
		matches = append(matches, Match{
			DocumentID: k.documentID,
			Index:      k.index,
			Strategies: names,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DocumentID != matches[j].DocumentID {
			return matches[i].DocumentID < matches[j].DocumentID
		}
		return matches[i].Index < matches[j].Index
	})

	return Result{Matches: matches, Failures: failures}, nil
}
