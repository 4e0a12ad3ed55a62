package document

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Paragraph is a contiguous block of text within a document. Start and End
// are byte offsets into the original document text, so the paragraph can be
// located even after the surrounding text is discarded.
type Paragraph struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Document is a source text split into indexed paragraphs.
type Document struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Segment splits text into paragraphs on blank lines and returns the
// resulting document. Paragraph indices are assigned in document order
// starting at zero. Whitespace-only blocks are skipped; offsets refer to the
// trimmed block within the original text.
func Segment(id string, text string) Document {
	doc := Document{
		ID:   id,
		Text: text,
	}

	offset := 0
	index := 0
	for _, block := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(block)
		if trimmed != "" {
			start := offset + strings.Index(block, trimmed)
			doc.Paragraphs = append(doc.Paragraphs, Paragraph{
				Index: index,
				Text:  trimmed,
				Start: start,
				End:   start + len(trimmed),
			})
			index++
		}
		offset += len(block) + len("\n\n")
	}

	return doc
}

// ParagraphByIndex returns the paragraph with the given index, or false when
// the index is out of range.
func (d Document) ParagraphByIndex(index int) (Paragraph, bool) {
	if index < 0 || index >= len(d.Paragraphs) {
		return Paragraph{}, false
	}
	return d.Paragraphs[index], true
}

// CountTokens returns the model token count of text. Used to keep prompt
// batches inside a token budget.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
