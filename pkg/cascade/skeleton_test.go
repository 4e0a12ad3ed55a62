package cascade

import (
	"context"
	"testing"
)

func caseEvidence() []Evidence {
	return []Evidence{
		{Ref: ParagraphRef{DocumentID: "doc1", Paragraph: 0}, Text: "The scheme began in 2014."},
		{Ref: ParagraphRef{DocumentID: "doc1", Paragraph: 2}, Text: "Proceeds were laundered through bitcoin."},
		{Ref: ParagraphRef{DocumentID: "doc2", Paragraph: 1}, Text: "Police seized the wallets in 2018."},
	}
}

func TestSkeletonExtractorAssignsIdentifiers(t *testing.T) {
	client := &fakeClient{
		structured: func(name, prompt string, out any) error {
			return fill(t, out, skeletonResponse{
				Title:     "Bitcoin laundering network",
				EventType: "money_laundering",
				TimeRange: TimeRange{Start: "2014", End: "2018"},
				Stages: []skeletonStage{
					{
						Label:     "Accumulation",
						TimeRange: TimeRange{Start: "2014", End: "2017"},
						Episodes: []skeletonEpisode{
							{Label: "Fundraising", ProvenanceIndices: []string{"doc1:0"}},
							{Label: "Conversion", ProvenanceIndices: []string{"doc1:2", "doc1:2"}},
						},
					},
					{
						Label:     "Seizure",
						TimeRange: TimeRange{Start: "2018", End: ""},
						Episodes: []skeletonEpisode{
							{Label: "Raid", ProvenanceIndices: []string{"doc2:1"}},
						},
					},
				},
			})
		},
	}

	cascade, violations, err := NewSkeletonExtractor(client).Extract(context.Background(), "laundering", caseEvidence())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %+v", violations)
	}
	if client.calls != 1 {
		t.Errorf("extractor called the model %d times, want 1", client.calls)
	}

	if len(cascade.Stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(cascade.Stages))
	}
	if cascade.Stages[0].ID != "S1" || cascade.Stages[1].ID != "S2" {
		t.Errorf("stage IDs %s, %s", cascade.Stages[0].ID, cascade.Stages[1].ID)
	}
	if cascade.Stages[0].Ordinal != 0 || cascade.Stages[1].Ordinal != 1 {
		t.Errorf("ordinals %d, %d", cascade.Stages[0].Ordinal, cascade.Stages[1].Ordinal)
	}
	if got := cascade.Stages[1].Span.End; got != UnknownTime {
		t.Errorf("empty bound became %q, want the unknown sentinel", got)
	}

	episodes := append(cascade.Stages[0].Episodes, cascade.Stages[1].Episodes...)
	wantIDs := []string{"E1", "E2", "E3"}
	for i, ep := range episodes {
		if ep.ID != wantIDs[i] {
			t.Errorf("episode %d got ID %s, want %s", i, ep.ID, wantIDs[i])
		}
	}

	conversion := cascade.Stages[0].Episodes[1]
	if len(conversion.Evidence) != 1 {
		t.Errorf("duplicate provenance not collapsed: %+v", conversion.Evidence)
	}
	if conversion.Evidence[0] != (ParagraphRef{DocumentID: "doc1", Paragraph: 2}) {
		t.Errorf("provenance resolved to %+v", conversion.Evidence[0])
	}
}

func TestSkeletonExtractorDropsEpisodesWithoutProvenance(t *testing.T) {
	reply := skeletonResponse{
		Title: "Bitcoin laundering network",
		Stages: []skeletonStage{
			{
				Label: "Accumulation",
				Episodes: []skeletonEpisode{
					{Label: "Fundraising", ProvenanceIndices: []string{"doc1:0"}},
					{Label: "Invented", ProvenanceIndices: []string{"doc9:4"}},
				},
			},
		},
	}
	client := &fakeClient{
		structured: func(name, prompt string, out any) error {
			return fill(t, out, reply)
		},
	}

	cascade, violations, err := NewSkeletonExtractor(client).Extract(context.Background(), "laundering", caseEvidence())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// One re-ask, then the unsupported episode is dropped.
	if client.calls != 2 {
		t.Errorf("extractor called the model %d times, want 2", client.calls)
	}
	if len(violations) != 1 || violations[0].Kind != ViolationMissingProvenance {
		t.Fatalf("unexpected violations: %+v", violations)
	}
	if got := len(cascade.Stages[0].Episodes); got != 1 {
		t.Errorf("stage kept %d episodes, want 1", got)
	}
	if cascade.Stages[0].Episodes[0].Label != "Fundraising" {
		t.Errorf("wrong episode survived: %s", cascade.Stages[0].Episodes[0].Label)
	}
}

func TestSkeletonExtractorReordersEpisodesByStart(t *testing.T) {
	client := &fakeClient{
		structured: func(name, prompt string, out any) error {
			return fill(t, out, skeletonResponse{
				Stages: []skeletonStage{
					{
						Label: "Accumulation",
						Episodes: []skeletonEpisode{
							{Label: "Later", TimeRange: TimeRange{Start: "2017-05"}, ProvenanceIndices: []string{"doc1:2"}},
							{Label: "Undated", ProvenanceIndices: []string{"doc2:1"}},
							{Label: "Earlier", TimeRange: TimeRange{Start: "2017-01"}, ProvenanceIndices: []string{"doc1:0"}},
						},
					},
				},
			})
		},
	}

	cascade, _, err := NewSkeletonExtractor(client).Extract(context.Background(), "laundering", caseEvidence())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var labels []string
	for _, ep := range cascade.Stages[0].Episodes {
		labels = append(labels, ep.Label)
	}
	want := []string{"Earlier", "Later", "Undated"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("episode order %v, want %v", labels, want)
		}
	}
}
