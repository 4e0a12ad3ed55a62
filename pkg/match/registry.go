package match

import (
	"errors"
	"fmt"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// ErrUnknownStrategy is returned when a configuration names a strategy that
// is not registered.
var ErrUnknownStrategy = errors.New("unknown match strategy")

// Deps carries the shared dependencies strategies draw from. Search is
// optional; without it the vector strategy embeds paragraphs in memory.
type Deps struct {
	Oracle          oracle.Client
	Search          ParagraphSearcher
	VectorThreshold float64
	TokenBudget     int
	Options         map[string]any
}

// Constructor builds a strategy from the shared dependencies.
type Constructor func(deps Deps) (Strategy, error)

var registry = map[string]Constructor{
	StrategyLexical: func(deps Deps) (Strategy, error) {
		return NewLexicalStrategy(), nil
	},
	StrategyVector: func(deps Deps) (Strategy, error) {
		if deps.Oracle == nil {
			return nil, fmt.Errorf("strategy %q requires an oracle client", StrategyVector)
		}
		threshold := deps.VectorThreshold
		if v, ok := optionFloat(deps.Options, "threshold"); ok {
			threshold = v
		}
		return NewVectorStrategy(deps.Oracle, deps.Search, threshold), nil
	},
	StrategyJudged: func(deps Deps) (Strategy, error) {
		if deps.Oracle == nil {
			return nil, fmt.Errorf("strategy %q requires an oracle client", StrategyJudged)
		}
		budget := deps.TokenBudget
		if v, ok := optionInt(deps.Options, "token_budget"); ok {
			budget = v
		}
		return NewJudgedStrategy(deps.Oracle, budget), nil
	},
	StrategyFiltered: func(deps Deps) (Strategy, error) {
		if deps.Oracle == nil {
			return nil, fmt.Errorf("strategy %q requires an oracle client", StrategyFiltered)
		}
		limit, _ := optionInt(deps.Options, "prefilter_limit")
		return NewFilteredStrategy(deps.Oracle, limit), nil
	},
}

// New builds the named strategy. Unknown names yield ErrUnknownStrategy so
// configuration mistakes surface at startup, not mid-run.
func New(name string, deps Deps) (Strategy, error) {
	constructor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return constructor(deps)
}

// Names returns the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func optionInt(options map[string]any, key string) (int, bool) {
	v, ok := options[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func optionFloat(options map[string]any, key string) (float64, bool) {
	v, ok := options[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
