package cascade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/match"
)

type scriptedStrategy struct {
	name string
	eval func(doc document.Document) ([]match.Candidate, error)
}

func (s scriptedStrategy) Name() string { return s.name }

func (s scriptedStrategy) Evaluate(ctx context.Context, query match.Query, doc document.Document) ([]match.Candidate, error) {
	return s.eval(doc)
}

const caseReport = `Qian Zhimin defrauded more than 128,000 investors between 2014 and 2017.

The proceeds were converted into bitcoin to move them out of reach.

Investigators described the scheme as large-scale money laundering.

Police seized the wallets during a raid in 2018.`

func pipelineOracle(t *testing.T) *fakeClient {
	t.Helper()
	amount := 4300000.0
	client := &fakeClient{}
	client.structured = func(name, prompt string, out any) error {
		switch name {
		case "event_skeleton":
			return fill(t, out, skeletonResponse{
				Title:     "Bitcoin laundering network",
				EventType: "money_laundering",
				TimeRange: TimeRange{Start: "2014", End: "2018"},
				Stages: []skeletonStage{
					{
						Label:     "Laundering",
						TimeRange: TimeRange{Start: "2014", End: "2018"},
						Episodes: []skeletonEpisode{
							{Label: "Conversion to bitcoin", ProvenanceIndices: []string{"doc1:1", "doc1:2"}},
						},
					},
				},
			})
		case "episode_participants":
			return fill(t, out, participantResponse{Participants: []extractedParticipant{
				{Name: "Qian Zhimin", Type: "PERSON", Roles: []string{"perpetrator"}},
				{Name: "Investors", Type: "OTHER"},
			}})
		case "episode_transactions":
			return fill(t, out, transactionResponse{Transactions: []extractedTransaction{
				{Source: "Investors", Target: "Qian Zhimin", Type: "transfer", Amount: &amount, Currency: "GBP", Timestamp: ""},
				{Source: "Unnamed Broker", Target: "Qian Zhimin", Type: "transfer"},
			}})
		case "episode_account":
			return fill(t, out, episodeAccount{
				Description: "Investor funds were converted to bitcoin.",
				TimeRange:   TimeRange{Start: "2014", End: "2017"},
			})
		case "participant_duplicates":
			return fill(t, out, dedupeResponse{})
		default:
			return errors.New("unexpected structured call " + name)
		}
	}
	return client
}

func TestBuilderRunProducesFrozenCascade(t *testing.T) {
	client := pipelineOracle(t)
	strategy := scriptedStrategy{
		name: "lexical",
		eval: func(doc document.Document) ([]match.Candidate, error) {
			return []match.Candidate{{Strategy: "lexical", DocumentID: doc.ID, Indices: []int{1, 2}, Score: 1}}, nil
		},
	}
	builder, err := NewBuilder(BuilderParams{
		Oracle:     client,
		Aggregator: match.NewAggregator([]match.Strategy{strategy}, 2),
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	doc := document.Segment("doc1", caseReport)
	cascade, err := builder.Run(context.Background(), match.Query{Text: "how was the money laundered"}, []document.Document{doc})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := builder.State(); got != StateFrozen {
		t.Errorf("builder state %s, want %s", got, StateFrozen)
	}
	if !cascade.Frozen {
		t.Error("cascade not frozen")
	}
	if cascade.Partial {
		t.Errorf("cascade marked partial: %+v", cascade.Violations)
	}
	if cascade.Query != "how was the money laundered" {
		t.Errorf("query not preserved: %q", cascade.Query)
	}
	if cascade.Title != "Bitcoin laundering network" {
		t.Errorf("title %q", cascade.Title)
	}

	if len(cascade.Stages) != 1 || len(cascade.Stages[0].Episodes) != 1 {
		t.Fatalf("unexpected structure: %+v", cascade.Stages)
	}
	episode := cascade.Stages[0].Episodes[0]
	if episode.ID != "E1" || cascade.Stages[0].ID != "S1" {
		t.Errorf("identifiers %s / %s", cascade.Stages[0].ID, episode.ID)
	}
	if episode.Description != "Investor funds were converted to bitcoin." {
		t.Errorf("final description not applied: %q", episode.Description)
	}

	if len(cascade.Participants) != 2 {
		t.Fatalf("got %d participants, want 2", len(cascade.Participants))
	}
	if len(episode.ParticipantIDs) != 2 {
		t.Errorf("episode participants %v", episode.ParticipantIDs)
	}

	// The transaction naming an unknown participant is dropped, the valid
	// one is numbered and its empty timestamp becomes the sentinel.
	if len(episode.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1: %+v", len(episode.Transactions), episode.Transactions)
	}
	tx := episode.Transactions[0]
	if tx.ID != "T1" {
		t.Errorf("transaction ID %s, want T1", tx.ID)
	}
	if tx.Timestamp != UnknownTime {
		t.Errorf("timestamp %q, want the unknown sentinel", tx.Timestamp)
	}

	dropped := false
	for _, v := range cascade.Violations {
		if v.Kind == ViolationUnknownParticipant {
			dropped = true
		} else if v.Kind == ViolationDanglingReference {
			t.Errorf("frozen cascade has dangling reference: %+v", v)
		}
	}
	if !dropped {
		t.Errorf("dropped transaction not recorded: %+v", cascade.Violations)
	}
}

func TestBuilderAllStrategiesFailed(t *testing.T) {
	strategy := scriptedStrategy{
		name: "lexical",
		eval: func(doc document.Document) ([]match.Candidate, error) {
			return nil, errors.New("backend down")
		},
	}
	builder, err := NewBuilder(BuilderParams{
		Oracle:     &fakeClient{},
		Aggregator: match.NewAggregator([]match.Strategy{strategy}, 2),
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	cascade, err := builder.Run(context.Background(), match.Query{Text: "anything"},
		[]document.Document{document.Segment("doc1", caseReport)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !cascade.Partial || !cascade.Frozen {
		t.Errorf("partial=%v frozen=%v, want both true", cascade.Partial, cascade.Frozen)
	}
	if len(cascade.Violations) != 1 || cascade.Violations[0].Kind != ViolationMatchingFailed {
		t.Errorf("violations %+v", cascade.Violations)
	}
	if len(cascade.Stages) != 0 {
		t.Errorf("failed match produced stages: %+v", cascade.Stages)
	}
}

func TestBuilderNoMatchesFreezesEmptyCascade(t *testing.T) {
	strategy := scriptedStrategy{
		name: "lexical",
		eval: func(doc document.Document) ([]match.Candidate, error) {
			return nil, nil
		},
	}
	builder, err := NewBuilder(BuilderParams{
		Oracle:     &fakeClient{},
		Aggregator: match.NewAggregator([]match.Strategy{strategy}, 2),
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	cascade, err := builder.Run(context.Background(), match.Query{Text: "unrelated topic"},
		[]document.Document{document.Segment("doc1", caseReport)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if cascade.Partial {
		t.Error("empty result marked partial")
	}
	if !cascade.Frozen {
		t.Error("empty result not frozen")
	}
	if len(cascade.Violations) != 1 || cascade.Violations[0].Kind != ViolationNoEvidence {
		t.Errorf("violations %+v", cascade.Violations)
	}
}

func TestBuilderEnrichesEpisodesConcurrently(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0

	client := &fakeClient{}
	client.structured = func(name, prompt string, out any) error {
		switch name {
		case "event_skeleton":
			return fill(t, out, skeletonResponse{
				Title:     "Bitcoin laundering network",
				EventType: "money_laundering",
				Stages: []skeletonStage{
					{
						Label: "Laundering",
						Episodes: []skeletonEpisode{
							{Label: "Conversion", ProvenanceIndices: []string{"doc1:1"}},
							{Label: "Seizure", ProvenanceIndices: []string{"doc1:3"}},
						},
					},
				},
			})
		case "episode_participants":
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			// Hold the task open long enough for its sibling to enter.
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return fill(t, out, participantResponse{})
		case "episode_transactions":
			return fill(t, out, transactionResponse{})
		case "episode_account":
			return fill(t, out, episodeAccount{})
		case "participant_duplicates":
			return fill(t, out, dedupeResponse{})
		default:
			return errors.New("unexpected structured call " + name)
		}
	}

	strategy := scriptedStrategy{
		name: "lexical",
		eval: func(doc document.Document) ([]match.Candidate, error) {
			return []match.Candidate{{Strategy: "lexical", DocumentID: doc.ID, Indices: []int{1, 3}, Score: 1}}, nil
		},
	}
	builder, err := NewBuilder(BuilderParams{
		Oracle:     client,
		Aggregator: match.NewAggregator([]match.Strategy{strategy}, 2),
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	cascade, err := builder.Run(context.Background(), match.Query{Text: "laundering"},
		[]document.Document{document.Segment("doc1", caseReport)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if peak < 2 {
		t.Errorf("episodes enriched one at a time (peak %d)", peak)
	}
	// Fan-in keeps the skeleton's episode order regardless of which task
	// finished first.
	episodes := cascade.Stages[0].Episodes
	if len(episodes) != 2 || episodes[0].Label != "Conversion" || episodes[1].Label != "Seizure" {
		t.Errorf("episode order changed: %+v", episodes)
	}
	if episodes[0].ID != "E1" || episodes[1].ID != "E2" {
		t.Errorf("episode identifiers %s / %s", episodes[0].ID, episodes[1].ID)
	}
}

func TestNewBuilderRequiresCollaborators(t *testing.T) {
	if _, err := NewBuilder(BuilderParams{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing oracle: got %v", err)
	}
	if _, err := NewBuilder(BuilderParams{Oracle: &fakeClient{}}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing aggregator: got %v", err)
	}
}

func TestBuilderEnrichmentFailureKeepsSkeletonEpisode(t *testing.T) {
	client := pipelineOracle(t)
	inner := client.structured
	client.structured = func(name, prompt string, out any) error {
		if name == "episode_participants" {
			return errors.New("backend down")
		}
		return inner(name, prompt, out)
	}

	strategy := scriptedStrategy{
		name: "lexical",
		eval: func(doc document.Document) ([]match.Candidate, error) {
			return []match.Candidate{{Strategy: "lexical", DocumentID: doc.ID, Indices: []int{1}, Score: 1}}, nil
		},
	}
	builder, err := NewBuilder(BuilderParams{
		Oracle:     client,
		Aggregator: match.NewAggregator([]match.Strategy{strategy}, 2),
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	cascade, err := builder.Run(context.Background(), match.Query{Text: "laundering"},
		[]document.Document{document.Segment("doc1", caseReport)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !cascade.Partial {
		t.Error("enrichment failure not marked partial")
	}
	found := false
	for _, v := range cascade.Violations {
		if v.Kind == ViolationEnrichmentFailed && v.Node == "E1" {
			found = true
		}
	}
	if !found {
		t.Errorf("no enrichment violation: %+v", cascade.Violations)
	}
	// The skeleton episode survives without participants or transactions.
	episode := cascade.Stages[0].Episodes[0]
	if len(episode.ParticipantIDs) != 0 || len(episode.Transactions) != 0 {
		t.Errorf("failed enrichment left partial data: %+v", episode)
	}
	if !strings.HasPrefix(episode.ID, "E") {
		t.Errorf("episode lost its identifier: %q", episode.ID)
	}
}
