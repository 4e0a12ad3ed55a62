package cascade

import (
	"context"
	"testing"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

func enrichedCascade() *Cascade {
	amount := 250000.0
	return &Cascade{
		ID:    "abc123",
		Title: "Bitcoin laundering network",
		Participants: []Participant{
			{ID: "P_1", Name: "Qian Zhimin", Type: "PERSON", Roles: []string{"perpetrator"}},
			{ID: "P_2", Name: "Safe Wealth Fund", Type: "ORGANIZATION"},
			{ID: "P_3", Name: "Zhimin Qian", Type: "PERSON", Roles: []string{"fugitive"}},
		},
		Stages: []Stage{
			{
				ID:      "S1",
				Ordinal: 0,
				Episodes: []Episode{
					{
						ID:             "E1",
						ParticipantIDs: []string{"P_1", "P_2"},
						Transactions: []Transaction{
							{SourceID: "P_2", TargetID: "P_1", Type: "transfer", Amount: &amount, Timestamp: UnknownTime},
						},
					},
					{
						ID:             "E2",
						ParticipantIDs: []string{"P_3"},
						Transactions: []Transaction{
							{SourceID: "P_3", TargetID: "P_2", Type: "conversion", Timestamp: "2017-03"},
						},
					},
				},
			},
		},
	}
}

func TestAssemblerMergesDuplicateParticipants(t *testing.T) {
	client := &fakeClient{}
	client.structured = func(name, prompt string, out any) error {
		// First round reports the duplicate pair, the second none.
		if client.calls > 1 {
			return fill(t, out, dedupeResponse{})
		}
		return fill(t, out, dedupeResponse{Duplicates: []dedupeGroup{
			{CanonicalName: "Qian Zhimin", Participants: []string{"Qian Zhimin", "Zhimin Qian"}},
		}})
	}

	c := enrichedCascade()
	if err := NewAssembler(client).Assemble(context.Background(), c); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(c.Participants) != 2 {
		t.Fatalf("got %d participants, want 2: %+v", len(c.Participants), c.Participants)
	}
	merged, ok := c.ParticipantByID("P_1")
	if !ok {
		t.Fatal("canonical participant P_1 missing")
	}
	if merged.Name != "Qian Zhimin" {
		t.Errorf("canonical name %q", merged.Name)
	}
	if len(merged.Aliases) != 1 || merged.Aliases[0] != "Zhimin Qian" {
		t.Errorf("aliases %v, want [Zhimin Qian]", merged.Aliases)
	}
	if len(merged.Roles) != 2 {
		t.Errorf("roles not unioned: %v", merged.Roles)
	}
	if _, gone := c.ParticipantByID("P_3"); gone {
		t.Error("absorbed participant P_3 still present")
	}

	second := c.Stages[0].Episodes[1]
	if len(second.ParticipantIDs) != 1 || second.ParticipantIDs[0] != "P_1" {
		t.Errorf("episode participants not remapped: %v", second.ParticipantIDs)
	}
	if second.Transactions[0].SourceID != "P_1" {
		t.Errorf("transaction source not remapped: %s", second.Transactions[0].SourceID)
	}

	if got := c.Stages[0].Episodes[0].Transactions[0].ID; got != "T1" {
		t.Errorf("first transaction got ID %s, want T1", got)
	}
	if got := second.Transactions[0].ID; got != "T2" {
		t.Errorf("second transaction got ID %s, want T2", got)
	}

	if !c.Frozen {
		t.Error("assembled cascade not frozen")
	}
	if c.Partial {
		t.Error("clean assembly marked partial")
	}
	if len(c.Violations) != 0 {
		t.Errorf("unexpected violations: %+v", c.Violations)
	}
}

func TestAssemblerDedupeFailureYieldsPartialCascade(t *testing.T) {
	client := &fakeClient{
		structured: func(name, prompt string, out any) error {
			return oracle.ErrMalformedOutput
		},
	}

	c := enrichedCascade()
	if err := NewAssembler(client).Assemble(context.Background(), c); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if !c.Partial {
		t.Error("cascade not marked partial after dedupe failure")
	}
	found := false
	for _, v := range c.Violations {
		if v.Kind == ViolationDedupeFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("no dedupe violation recorded: %+v", c.Violations)
	}

	// The rest of assembly still runs.
	if !c.Frozen {
		t.Error("partial cascade not frozen")
	}
	if got := c.Stages[0].Episodes[0].Transactions[0].ID; got != "T1" {
		t.Errorf("transactions not numbered, got %q", got)
	}
	if len(c.Participants) != 3 {
		t.Errorf("participants changed without a merge: %d", len(c.Participants))
	}
}

func TestAssemblerIgnoresUnresolvableGroups(t *testing.T) {
	client := &fakeClient{
		structured: func(name, prompt string, out any) error {
			return fill(t, out, dedupeResponse{Duplicates: []dedupeGroup{
				{CanonicalName: "Nobody", Participants: []string{"Nobody", "No One"}},
			}})
		},
	}

	c := enrichedCascade()
	if err := NewAssembler(client).Assemble(context.Background(), c); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(c.Participants) != 3 {
		t.Errorf("unknown names changed the pool: %d participants", len(c.Participants))
	}
	if client.calls != 1 {
		t.Errorf("no-op round repeated %d times, want 1", client.calls)
	}
}

func TestAssemblerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{
		structured: func(name, prompt string, out any) error {
			cancel()
			return ctx.Err()
		},
	}

	c := enrichedCascade()
	if err := NewAssembler(client).Assemble(ctx, c); err == nil {
		t.Fatal("expected context error")
	}
	if c.Frozen {
		t.Error("cancelled assembly froze the cascade")
	}
}
