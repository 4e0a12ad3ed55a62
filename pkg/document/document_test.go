package document

import (
	"reflect"
	"testing"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Paragraph
	}{
		{
			name: "single paragraph",
			text: "The fund collapsed in 2017.",
			want: []Paragraph{
				{Index: 0, Text: "The fund collapsed in 2017.", Start: 0, End: 27},
			},
		},
		{
			name: "two paragraphs",
			text: "First block.\n\nSecond block.",
			want: []Paragraph{
				{Index: 0, Text: "First block.", Start: 0, End: 12},
				{Index: 1, Text: "Second block.", Start: 14, End: 27},
			},
		},
		{
			name: "blank blocks are skipped without consuming indices",
			text: "First.\n\n\n\nSecond.",
			want: []Paragraph{
				{Index: 0, Text: "First.", Start: 0, End: 6},
				{Index: 1, Text: "Second.", Start: 10, End: 17},
			},
		},
		{
			name: "leading whitespace inside a block is trimmed",
			text: "First.\n\n   Indented second.",
			want: []Paragraph{
				{Index: 0, Text: "First.", Start: 0, End: 6},
				{Index: 1, Text: "Indented second.", Start: 11, End: 27},
			},
		},
		{
			name: "empty document",
			text: "",
			want: nil,
		},
		{
			name: "whitespace only",
			text: "   \n\n  \n\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment("doc-1", tt.text)
			if got.ID != "doc-1" {
				t.Fatalf("expected document id doc-1, got %s", got.ID)
			}
			if !reflect.DeepEqual(got.Paragraphs, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got.Paragraphs)
			}
			for _, p := range got.Paragraphs {
				if tt.text[p.Start:p.End] != p.Text {
					t.Fatalf("offsets of paragraph %d do not recover its text: %q vs %q",
						p.Index, tt.text[p.Start:p.End], p.Text)
				}
			}
		})
	}
}

func TestParagraphByIndex(t *testing.T) {
	doc := Segment("doc-1", "One.\n\nTwo.\n\nThree.")

	p, ok := doc.ParagraphByIndex(1)
	if !ok {
		t.Fatal("expected paragraph 1 to exist")
	}
	if p.Text != "Two." {
		t.Fatalf("expected Two., got %q", p.Text)
	}

	if _, ok := doc.ParagraphByIndex(3); ok {
		t.Fatal("expected index 3 to be out of range")
	}
	if _, ok := doc.ParagraphByIndex(-1); ok {
		t.Fatal("expected index -1 to be out of range")
	}
}

func TestCountTokens(t *testing.T) {
	n, err := CountTokens("The fund collapsed in 2017.")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if n <= 0 {
		t.Fatalf("expected positive token count, got %d", n)
	}

	zero, err := CountTokens("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if zero != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", zero)
	}
}
