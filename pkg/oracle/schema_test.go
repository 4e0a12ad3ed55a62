package oracle

import (
	"errors"
	"reflect"
	"testing"
)

type selectionOut struct {
	Paragraphs []int   `json:"paragraphs"`
	Reason     string  `json:"reason"`
	Score      float64 `json:"score"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    selectionOut
		wantErr bool
	}{
		{
			name:  "standard json",
			input: `{"paragraphs": [1, 2], "reason": "relevant", "score": 0.9}`,
			want:  selectionOut{Paragraphs: []int{1, 2}, Reason: "relevant", Score: 0.9},
		},
		{
			name:  "double encoded",
			input: `"{\"paragraphs\": [3], \"reason\": \"ok\", \"score\": 0.5}"`,
			want:  selectionOut{Paragraphs: []int{3}, Reason: "ok", Score: 0.5},
		},
		{
			name:  "malformed repaired",
			input: `{paragraphs: [0], reason: "fixed", score: 1.0}`,
			want:  selectionOut{Paragraphs: []int{0}, Reason: "fixed", Score: 1.0},
		},
		{
			name:  "surrounding whitespace",
			input: "\n  {\"paragraphs\": [], \"reason\": \"none\", \"score\": 0}  \n",
			want:  selectionOut{Paragraphs: []int{}, Reason: "none", Score: 0},
		},
		{
			name:    "not json at all",
			input:   "I could not find any relevant paragraphs.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got selectionOut
			err := UnmarshalFlexible(tt.input, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("expected ErrMalformedOutput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&selectionOut{})
	if schema == nil {
		t.Fatal("expected schema, got nil")
	}
}
