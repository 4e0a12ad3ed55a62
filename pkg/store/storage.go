package store

import (
	"context"
	"errors"
	"time"

	"github.com/AgenticFinLab/FinMycelium/pkg/cascade"
	"github.com/AgenticFinLab/FinMycelium/pkg/document"
)

// ErrNotFound is returned when the requested build, cascade, or document does
// not exist.
var ErrNotFound = errors.New("not found")

// Build is the persisted record of one reconstruction request, from the
// moment it is accepted until its cascade freezes or the run fails.
type Build struct {
	ID           string        `json:"id"`
	Query        string        `json:"query"`
	Keywords     []string      `json:"keywords,omitempty"`
	DocumentKeys []string      `json:"document_keys"`
	State        cascade.State `json:"state"`
	Error        string        `json:"error,omitempty"`
	Partial      bool          `json:"partial"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ParagraphHit is one paragraph returned by embedding similarity search.
type ParagraphHit struct {
	DocumentID string  `json:"document_id"`
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// CascadeStorage persists documents, their paragraph embeddings, and the
// builds that reconstruct cascades from them.
type CascadeStorage interface {
	SaveDocument(ctx context.Context, doc document.Document, embeddings [][]float32) error
	GetDocument(ctx context.Context, id string) (document.Document, error)
	SimilarParagraphs(ctx context.Context, documentIDs []string, embedding []float32, limit int32) ([]ParagraphHit, error)

	CreateBuild(ctx context.Context, build Build) error
	SetBuildState(ctx context.Context, id string, state cascade.State) error
	FailBuild(ctx context.Context, id string, reason string) error
	SaveCascade(ctx context.Context, buildID string, c *cascade.Cascade) error

	GetBuild(ctx context.Context, id string) (Build, error)
	GetCascade(ctx context.Context, buildID string) (*cascade.Cascade, error)
	ListBuilds(ctx context.Context, limit int32) ([]Build, error)
}

// ChunkRange invokes fn over [start, end) windows of at most chunkSize
// elements until total is covered or fn errors.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
