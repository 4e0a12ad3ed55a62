package storage

import "testing"

func TestKeyRoundTrip(t *testing.T) {
	tests := []struct {
		id  string
		key string
	}{
		{"doc1", "documents/doc1.txt"},
		{"a-b_c", "documents/a-b_c.txt"},
	}

	for _, tt := range tests {
		if got := Key(tt.id); got != tt.key {
			t.Errorf("Key(%q) = %q, want %q", tt.id, got, tt.key)
		}
		if got := DocumentID(tt.key); got != tt.id {
			t.Errorf("DocumentID(%q) = %q, want %q", tt.key, got, tt.id)
		}
	}
}

func TestDocumentIDPassesThroughRawIDs(t *testing.T) {
	if got := DocumentID("doc1"); got != "doc1" {
		t.Errorf("DocumentID(doc1) = %q", got)
	}
}
