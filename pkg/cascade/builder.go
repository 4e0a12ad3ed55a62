package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/match"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// State names the phase a reconstruction is currently in. Transitions are
// strictly forward; a cascade in StateFrozen never changes again.
type State string

const (
	StateCollecting       State = "collecting"
	StateMatching         State = "matching"
	StateSkeletonBuilding State = "skeleton_building"
	StateEpisodeEnriching State = "episode_enriching"
	StateAssembling       State = "assembling"
	StateFrozen           State = "frozen"
)

// ErrNotConfigured is returned by NewBuilder when a required collaborator
// is missing.
var ErrNotConfigured = errors.New("builder not configured")

type BuilderParams struct {
	Oracle     oracle.Client
	Aggregator *match.Aggregator
	Summarizer match.Summarizer

	// OnTransition is invoked after every phase change, when set. Callers
	// use it to persist build progress.
	OnTransition func(State)
}

// Builder drives one reconstruction through its phases: match evidence,
// extract the skeleton, enrich episodes, assemble and freeze. Failures in
// the middle phases degrade the cascade to a partial result instead of
// aborting the run.
type Builder struct {
	client       oracle.Client
	aggregator   *match.Aggregator
	summarizer   match.Summarizer
	onTransition func(State)

	mu    sync.Mutex
	state State
}

func NewBuilder(params BuilderParams) (*Builder, error) {
	if params.Oracle == nil {
		return nil, fmt.Errorf("%w: oracle client required", ErrNotConfigured)
	}
	if params.Aggregator == nil {
		return nil, fmt.Errorf("%w: match aggregator required", ErrNotConfigured)
	}
	return &Builder{
		client:       params.Oracle,
		aggregator:   params.Aggregator,
		summarizer:   params.Summarizer,
		onTransition: params.OnTransition,
		state:        StateCollecting,
	}, nil
}

// State reports the phase the current run is in.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) transition(next State) {
	b.mu.Lock()
	b.state = next
	b.mu.Unlock()
	logger.Info("reconstruction phase", "state", next)
	if b.onTransition != nil {
		b.onTransition(next)
	}
}

// Run reconstructs one cascade for the query over the documents. The
// returned error is non-nil only when the context ends; every other failure
// is recorded on the cascade itself.
func (b *Builder) Run(ctx context.Context, query match.Query, docs []document.Document) (*Cascade, error) {
	b.transition(StateCollecting)
	cascade := &Cascade{
		ID:    util.MustNewID(),
		Query: query.Text,
		Span:  TimeRange{Start: UnknownTime, End: UnknownTime},
	}
	byID := make(map[string]document.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	evidence, ok, err := b.matchEvidence(ctx, query, docs, byID, cascade)
	if err != nil {
		return nil, err
	}
	if !ok {
		b.transition(StateFrozen)
		cascade.Freeze()
		return cascade, nil
	}

	if err := b.buildSkeleton(ctx, query, evidence, cascade); err != nil {
		return nil, err
	}

	if err := b.enrichEpisodes(ctx, byID, cascade); err != nil {
		return nil, err
	}

	b.transition(StateAssembling)
	if err := NewAssembler(b.client).Assemble(ctx, cascade); err != nil {
		return nil, err
	}

	b.transition(StateFrozen)
	return cascade, nil
}

// matchEvidence runs the match phase. The boolean reports whether there is
// any evidence to continue with; false means the cascade should freeze as
// an empty result.
func (b *Builder) matchEvidence(ctx context.Context, query match.Query, docs []document.Document, byID map[string]document.Document, cascade *Cascade) ([]Evidence, bool, error) {
	b.transition(StateMatching)

	query = match.Enrich(ctx, b.summarizer, query)
	result, err := b.aggregator.MatchAll(ctx, query, docs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		logger.Warn("matching produced no consensus", "err", err)
		cascade.Partial = true
		cascade.Violations = append(cascade.Violations, Violation{
			Kind:   ViolationMatchingFailed,
			Detail: err.Error(),
		})
		return nil, false, nil
	}
	if len(result.Matches) == 0 {
		logger.Warn("no paragraphs matched the query")
		cascade.Violations = append(cascade.Violations, Violation{
			Kind:   ViolationNoEvidence,
			Detail: "no strategy selected any paragraph for the query",
		})
		return nil, false, nil
	}

	var evidence []Evidence
	for _, m := range result.Matches {
		doc, found := byID[m.DocumentID]
		if !found {
			continue
		}
		paragraph, found := doc.ParagraphByIndex(m.Index)
		if !found {
			continue
		}
		evidence = append(evidence, Evidence{
			Ref:  ParagraphRef{DocumentID: m.DocumentID, Paragraph: m.Index},
			Text: paragraph.Text,
		})
	}
	if len(evidence) == 0 {
		cascade.Violations = append(cascade.Violations, Violation{
			Kind:   ViolationNoEvidence,
			Detail: "matched paragraphs could not be resolved in the source documents",
		})
		return nil, false, nil
	}
	return evidence, true, nil
}

func (b *Builder) buildSkeleton(ctx context.Context, query match.Query, evidence []Evidence, cascade *Cascade) error {
	b.transition(StateSkeletonBuilding)

	shell, violations, err := NewSkeletonExtractor(b.client).Extract(ctx, query.Text, evidence)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("skeleton extraction failed", "err", err)
		cascade.Partial = true
		cascade.Violations = append(cascade.Violations, Violation{
			Kind:   ViolationSkeletonFailed,
			Detail: err.Error(),
		})
		return nil
	}

	cascade.Title = shell.Title
	cascade.EventType = shell.EventType
	cascade.Span = shell.Span
	cascade.Stages = shell.Stages
	cascade.Violations = append(cascade.Violations, violations...)
	return nil
}

// maxParallelEpisodes bounds the enrichment fan-out per build.
const maxParallelEpisodes = 4

func (b *Builder) enrichEpisodes(ctx context.Context, byID map[string]document.Document, cascade *Cascade) error {
	b.transition(StateEpisodeEnriching)

	pool := NewPool(b.client)
	enricher := NewEpisodeEnricher(b.client, pool)

	var episodes []*Episode
	for si := range cascade.Stages {
		for ei := range cascade.Stages[si].Episodes {
			episodes = append(episodes, &cascade.Stages[si].Episodes[ei])
		}
	}

	// One task per episode, joined before assembly. Tasks write results
	// back by index, so episode order stays the skeleton's order no
	// matter which task finishes first.
	violations := make([][]Violation, len(episodes))
	failures := make([]*Violation, len(episodes))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelEpisodes)
	for i, episode := range episodes {
		eg.Go(func() error {
			evidence := b.episodeEvidence(byID, episode)
			found, err := enricher.Enrich(gCtx, episode, evidence)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Warn("episode enrichment failed", "episode", episode.ID, "err", err)
				failures[i] = &Violation{
					Kind:   ViolationEnrichmentFailed,
					Node:   episode.ID,
					Detail: err.Error(),
				}
				return nil
			}
			violations[i] = found
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i := range episodes {
		if failures[i] != nil {
			cascade.Partial = true
			cascade.Violations = append(cascade.Violations, *failures[i])
			continue
		}
		cascade.Violations = append(cascade.Violations, violations[i]...)
	}

	cascade.Participants = pool.Participants()
	return nil
}

func (b *Builder) episodeEvidence(byID map[string]document.Document, episode *Episode) []Evidence {
	var evidence []Evidence
	for _, ref := range episode.Evidence {
		doc, found := byID[ref.DocumentID]
		if !found {
			continue
		}
		paragraph, found := doc.ParagraphByIndex(ref.Paragraph)
		if !found {
			continue
		}
		evidence = append(evidence, Evidence{Ref: ref, Text: paragraph.Text})
	}
	return evidence
}
