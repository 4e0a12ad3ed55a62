package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/store"
)

// SaveDocument upserts the document and its paragraphs in one transaction.
// embeddings is indexed like doc.Paragraphs; it may be nil when no embedding
// backend is configured, in which case similarity search skips the document.
func (s *CascadeDBStorage) SaveDocument(ctx context.Context, doc document.Document, embeddings [][]float32) error {
	if embeddings != nil && len(embeddings) != len(doc.Paragraphs) {
		return fmt.Errorf("got %d embeddings for %d paragraphs", len(embeddings), len(doc.Paragraphs))
	}

	logger.Debug("[Store][SaveDocument] Upserting document", "id", doc.ID, "paragraphs", len(doc.Paragraphs))

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, body)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body
	`, doc.ID, util.SanitizePostgresText(doc.Text))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM paragraphs WHERE document_id = $1`, doc.ID)
	if err != nil {
		return err
	}

	chunkSize := 500
	err = store.ChunkRange(len(doc.Paragraphs), chunkSize, func(start, end int) error {
		for i := start; i < end; i++ {
			p := doc.Paragraphs[i]
			var embedding any
			if embeddings != nil && len(embeddings[i]) > 0 {
				embedding = pgvector.NewVector(embeddings[i])
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO paragraphs (document_id, idx, body, start_offset, end_offset, embedding)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, doc.ID, p.Index, util.SanitizePostgresText(p.Text), p.Start, p.End, embedding)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetDocument loads a document and its paragraphs in index order.
func (s *CascadeDBStorage) GetDocument(ctx context.Context, id string) (document.Document, error) {
	doc := document.Document{ID: id}

	err := s.conn.QueryRow(ctx, `SELECT body FROM documents WHERE id = $1`, id).Scan(&doc.Text)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return document.Document{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
		}
		return document.Document{}, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT idx, body, start_offset, end_offset
		FROM paragraphs
		WHERE document_id = $1
		ORDER BY idx
	`, id)
	if err != nil {
		return document.Document{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p document.Paragraph
		if err := rows.Scan(&p.Index, &p.Text, &p.Start, &p.End); err != nil {
			return document.Document{}, err
		}
		doc.Paragraphs = append(doc.Paragraphs, p)
	}
	return doc, rows.Err()
}

// SimilarParagraphs returns the paragraphs nearest to the embedding by
// cosine distance, restricted to the given documents when any are named.
func (s *CascadeDBStorage) SimilarParagraphs(ctx context.Context, documentIDs []string, embedding []float32, limit int32) ([]store.ParagraphHit, error) {
	if limit <= 0 {
		limit = 10
	}
	if documentIDs == nil {
		documentIDs = []string{}
	}

	rows, err := s.conn.Query(ctx, `
		SELECT document_id, idx, body, 1 - (embedding <=> $1) AS similarity
		FROM paragraphs
		WHERE embedding IS NOT NULL
		  AND (cardinality($2::text[]) = 0 OR document_id = ANY($2::text[]))
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(embedding), documentIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []store.ParagraphHit
	for rows.Next() {
		var hit store.ParagraphHit
		if err := rows.Scan(&hit.DocumentID, &hit.Index, &hit.Text, &hit.Similarity); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
