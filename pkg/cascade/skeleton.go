package cascade

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// Evidence pairs a paragraph reference with its text, so prompt builders do
// not need access to the full documents.
type Evidence struct {
	Ref  ParagraphRef `json:"ref"`
	Text string       `json:"text"`
}

type skeletonEpisode struct {
	Label             string    `json:"label"`
	Description       string    `json:"description"`
	TimeRange         TimeRange `json:"time_range"`
	ProvenanceIndices []string  `json:"provenance_indices"`
}

type skeletonStage struct {
	Label     string            `json:"label"`
	TimeRange TimeRange         `json:"time_range"`
	Episodes  []skeletonEpisode `json:"episodes"`
}

type skeletonResponse struct {
	Title     string          `json:"title"`
	EventType string          `json:"event_type"`
	TimeRange TimeRange       `json:"time_range"`
	Stages    []skeletonStage `json:"stages"`
}

// SkeletonExtractor asks the model for the stage and episode structure of
// the event and normalizes the reply into a cascade shell.
type SkeletonExtractor struct {
	client oracle.Client
}

func NewSkeletonExtractor(client oracle.Client) *SkeletonExtractor {
	return &SkeletonExtractor{client: client}
}

func evidenceKey(ref ParagraphRef) string {
	return ref.DocumentID + ":" + strconv.Itoa(ref.Paragraph)
}

func formatEvidence(evidence []Evidence) string {
	var b strings.Builder
	for _, ev := range evidence {
		fmt.Fprintf(&b, "[%s] %s\n\n", evidenceKey(ev.Ref), ev.Text)
	}
	return strings.TrimSuffix(b.String(), "\n\n")
}

// Extract builds the cascade shell (title, span, stages, episodes with
// provenance) from the evidence. Episodes without usable provenance trigger
// one structured re-ask; any still lacking provenance are dropped and
// recorded as violations.
func (s *SkeletonExtractor) Extract(ctx context.Context, query string, evidence []Evidence) (*Cascade, []Violation, error) {
	known := make(map[string]ParagraphRef, len(evidence))
	for _, ev := range evidence {
		known[evidenceKey(ev.Ref)] = ev.Ref
	}
	listing := formatEvidence(evidence)

	var response skeletonResponse
	if err := s.client.CompleteStructured(
		ctx,
		"event_skeleton",
		"Stages and episodes of the reconstructed event",
		fmt.Sprintf(oracle.SkeletonPrompt, query, listing),
		&response,
	); err != nil {
		return nil, nil, err
	}

	if missingProvenance(response, known) {
		logger.Warn("skeleton episodes missing provenance, re-asking")
		retry := skeletonResponse{}
		if err := s.client.CompleteStructured(
			ctx,
			"event_skeleton",
			"Stages and episodes of the reconstructed event",
			fmt.Sprintf(oracle.SkeletonRetryPrompt, query, listing),
			&retry,
		); err == nil {
			response = retry
		} else {
			logger.Warn("skeleton re-ask failed, keeping first reply", "err", err)
		}
	}

	return s.normalize(response, known)
}

func missingProvenance(response skeletonResponse, known map[string]ParagraphRef) bool {
	for _, stage := range response.Stages {
		for _, ep := range stage.Episodes {
			if len(resolveRefs(ep.ProvenanceIndices, known)) == 0 {
				return true
			}
		}
	}
	return false
}

func resolveRefs(indices []string, known map[string]ParagraphRef) []ParagraphRef {
	var refs []ParagraphRef
	seen := make(map[ParagraphRef]bool)
	for _, raw := range indices {
		ref, ok := known[strings.TrimSpace(raw)]
		if !ok {
			continue
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

func (s *SkeletonExtractor) normalize(response skeletonResponse, known map[string]ParagraphRef) (*Cascade, []Violation, error) {
	var violations []Violation

	cascade := &Cascade{
		Title:     response.Title,
		EventType: response.EventType,
		Span:      normalizeRange(response.TimeRange),
	}

	episodeCount := 0
	for _, rawStage := range response.Stages {
		stage := Stage{
			Label: rawStage.Label,
			Span:  normalizeRange(rawStage.TimeRange),
		}

		for _, rawEp := range rawStage.Episodes {
			refs := resolveRefs(rawEp.ProvenanceIndices, known)
			if len(refs) == 0 {
				logger.Warn("dropping episode without provenance", "episode", rawEp.Label)
				violations = append(violations, Violation{
					Kind:   ViolationMissingProvenance,
					Detail: fmt.Sprintf("episode %q cited no known evidence and was dropped", rawEp.Label),
				})
				continue
			}
			stage.Episodes = append(stage.Episodes, Episode{
				Label:       rawEp.Label,
				Description: rawEp.Description,
				Span:        normalizeRange(rawEp.TimeRange),
				Evidence:    refs,
			})
		}
		if len(stage.Episodes) == 0 && len(rawStage.Episodes) > 0 {
			// All episodes dropped; the stage carries nothing.
			continue
		}

		// Episodes are ordered by parsed start; undated episodes go last
		// and ties keep their narrative order.
		sort.SliceStable(stage.Episodes, func(i, j int) bool {
			ti, iOK := stage.Episodes[i].Span.StartTime()
			tj, jOK := stage.Episodes[j].Span.StartTime()
			if !iOK {
				return false
			}
			if !jOK {
				return true
			}
			return ti.Before(tj)
		})

		cascade.Stages = append(cascade.Stages, stage)
	}

	for i := range cascade.Stages {
		cascade.Stages[i].Ordinal = i
		cascade.Stages[i].ID = util.StageID(i + 1)
		for j := range cascade.Stages[i].Episodes {
			episodeCount++
			cascade.Stages[i].Episodes[j].ID = util.EpisodeID(episodeCount)
		}
	}

	return cascade, violations, nil
}

func normalizeRange(r TimeRange) TimeRange {
	if strings.TrimSpace(r.Start) == "" {
		r.Start = UnknownTime
	}
	if strings.TrimSpace(r.End) == "" {
		r.End = UnknownTime
	}
	return r
}
