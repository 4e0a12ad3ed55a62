package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
)

// fakeClient scripts the structured completions the cascade stages issue.
// Episode enrichment calls it from several goroutines at once.
type fakeClient struct {
	mu         sync.Mutex
	structured func(name, prompt string, out any) error
	calls      int
}

func (f *fakeClient) Complete(ctx context.Context, prompt string, opts ...oracle.Option) (string, error) {
	return "", errors.New("unexpected Complete call")
}

func (f *fakeClient) CompleteStructured(ctx context.Context, name, description, prompt string, out any, opts ...oracle.Option) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.structured == nil {
		return errors.New("unexpected CompleteStructured call")
	}
	return f.structured(name, prompt, out)
}

func (f *fakeClient) Embed(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("unexpected Embed call")
}

func (f *fakeClient) GetUsage() oracle.Usage { return oracle.Usage{} }
func (f *fakeClient) ResetUsage()            {}

// fill writes v into out through JSON, the same way a model reply would
// arrive.
func fill(t *testing.T, out any, v any) error {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal scripted reply: %v", err)
	}
	return json.Unmarshal(raw, out)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"2017-03-15T10:30:00Z", true},
		{"2017-03-15", true},
		{"2017-03", true},
		{"2017", true},
		{UnknownTime, false},
		{"", false},
		{"mid 2017", false},
	}

	for _, tt := range tests {
		if _, ok := ParseTime(tt.raw); ok != tt.want {
			t.Errorf("ParseTime(%q) ok = %v, want %v", tt.raw, ok, tt.want)
		}
	}
}

func TestCascadeRoundTrip(t *testing.T) {
	amount := 4300000.0
	original := Cascade{
		ID:        "abc123",
		Title:     "Bitcoin laundering network",
		EventType: "money_laundering",
		Query:     "how were the proceeds moved",
		Span:      TimeRange{Start: "2014", End: UnknownTime},
		Stages: []Stage{
			{
				ID:      "S1",
				Ordinal: 0,
				Label:   "Accumulation",
				Span:    TimeRange{Start: "2014", End: "2017"},
				Episodes: []Episode{
					{
						ID:             "E1",
						Label:          "Fraudulent fundraising",
						Description:    "Investors were solicited.",
						Span:           TimeRange{Start: "2014-03", End: UnknownTime},
						ParticipantIDs: []string{"P_1"},
						Transactions: []Transaction{
							{
								ID:        "T1",
								SourceID:  "P_1",
								TargetID:  "P_1",
								Type:      "transfer",
								Amount:    &amount,
								Currency:  "GBP",
								Timestamp: UnknownTime,
								Evidence:  []ParagraphRef{{DocumentID: "doc1", Paragraph: 2}},
							},
						},
						Evidence: []ParagraphRef{{DocumentID: "doc1", Paragraph: 2}},
					},
				},
			},
		},
		Participants: []Participant{
			{ID: "P_1", Name: "Qian Zhimin", Type: "PERSON", Aliases: []string{"Zhimin Qian"}},
		},
		Frozen: true,
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Cascade
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip changed the cascade:\n got %+v\nwant %+v", decoded, original)
	}
	if decoded.Span.End != UnknownTime {
		t.Errorf("unknown sentinel became %q", decoded.Span.End)
	}
}

func TestValidateStageOrdinals(t *testing.T) {
	c := Cascade{
		Stages: []Stage{
			{ID: "S1", Ordinal: 0},
			{ID: "S2", Ordinal: 2},
		},
	}

	violations := c.Validate()
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %+v", len(violations), violations)
	}
	if violations[0].Kind != ViolationStageOrder || violations[0].Node != "S2" {
		t.Errorf("unexpected violation %+v", violations[0])
	}
}

func TestValidateEpisodeContainment(t *testing.T) {
	cases := []struct {
		name string
		span TimeRange
		want int
	}{
		{"within", TimeRange{Start: "2017-03", End: "2017-09"}, 0},
		{"overlaps start", TimeRange{Start: "2016-12", End: "2017-02"}, 0},
		{"overlaps end", TimeRange{Start: "2017-11", End: "2019"}, 0},
		{"straddles whole stage", TimeRange{Start: "2016-06", End: "2019"}, 0},
		{"unknown bounds", TimeRange{Start: UnknownTime, End: UnknownTime}, 0},
		{"ends before stage begins", TimeRange{Start: "2015", End: "2016-06"}, 1},
		{"starts after stage ends", TimeRange{Start: "2019-01", End: "2019-06"}, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Cascade{
				Stages: []Stage{
					{
						ID:      "S1",
						Ordinal: 0,
						Span:    TimeRange{Start: "2017", End: "2018"},
						Episodes: []Episode{
							{ID: "E1", Span: tc.span},
						},
					},
				},
			}

			violations := c.Validate()
			if len(violations) != tc.want {
				t.Fatalf("got %d violations, want %d: %+v", len(violations), tc.want, violations)
			}
			for _, v := range violations {
				if v.Kind != ViolationEpisodeOutsideSpan || v.Node != "E1" {
					t.Errorf("unexpected violation %+v", v)
				}
			}
		})
	}
}

func TestValidateDanglingReferences(t *testing.T) {
	c := Cascade{
		Participants: []Participant{{ID: "P_1", Name: "Qian Zhimin", Type: "PERSON"}},
		Stages: []Stage{
			{
				ID:      "S1",
				Ordinal: 0,
				Episodes: []Episode{
					{
						ID:             "E1",
						ParticipantIDs: []string{"P_1", "P_9"},
						Transactions: []Transaction{
							{ID: "T1", SourceID: "P_1", TargetID: "P_9", Timestamp: UnknownTime},
						},
					},
				},
			},
		},
	}

	violations := c.Validate()
	if len(violations) != 2 {
		t.Fatalf("got %d violations, want 2: %+v", len(violations), violations)
	}
	for _, v := range violations {
		if v.Kind != ViolationDanglingReference {
			t.Errorf("unexpected violation %+v", v)
		}
	}
}

func TestValidateCleanCascade(t *testing.T) {
	c := Cascade{
		Participants: []Participant{{ID: "P_1", Name: "Qian Zhimin", Type: "PERSON"}},
		Stages: []Stage{
			{
				ID:      "S1",
				Ordinal: 0,
				Span:    TimeRange{Start: "2014", End: "2017"},
				Episodes: []Episode{
					{
						ID:             "E1",
						Span:           TimeRange{Start: "2014-03", End: "2016"},
						ParticipantIDs: []string{"P_1"},
					},
				},
			},
		},
	}

	if violations := c.Validate(); len(violations) != 0 {
		t.Errorf("expected no violations, got %+v", violations)
	}
}
