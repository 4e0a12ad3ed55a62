package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AgenticFinLab/FinMycelium/internal/config"
	"github.com/AgenticFinLab/FinMycelium/internal/storage"
	"github.com/AgenticFinLab/FinMycelium/pkg/cascade"
	"github.com/AgenticFinLab/FinMycelium/pkg/document"
	"github.com/AgenticFinLab/FinMycelium/pkg/leaselock"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/match"
	"github.com/AgenticFinLab/FinMycelium/pkg/oracle"
	"github.com/AgenticFinLab/FinMycelium/pkg/store"
)

// ReconstructMsg is the payload carried on the reconstruct queue.
type ReconstructMsg struct {
	BuildID      string   `json:"build_id"`
	Query        string   `json:"query"`
	Keywords     []string `json:"keywords,omitempty"`
	DocumentKeys []string `json:"document_keys"`
}

// ProcessReconstructMessage runs one build end to end: fetch the source
// documents, run the reconstruction, persist the frozen cascade. A returned
// error sends the message to the retry queue.
func ProcessReconstructMessage(
	ctx context.Context,
	docStore *storage.DocumentStore,
	oracleClient oracle.Client,
	db store.CascadeStorage,
	locks *leaselock.Client,
	pipeline config.PipelineConfig,
	msg string,
) (err error) {
	data := new(ReconstructMsg)
	if err = json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("malformed reconstruct message: %w", err)
	}
	if data.BuildID == "" || data.Query == "" || len(data.DocumentKeys) == 0 {
		return fmt.Errorf("reconstruct message missing build_id, query, or document_keys")
	}

	// A redelivery must not race a worker that is still on the build.
	if locks != nil {
		return locks.WithLease(ctx, leaselock.BuildKey(data.BuildID), leaselock.Options{
			TTL: 10 * time.Minute,
		}, func(ctx context.Context) error {
			return processBuild(ctx, docStore, oracleClient, db, pipeline, data)
		})
	}
	return processBuild(ctx, docStore, oracleClient, db, pipeline, data)
}

func processBuild(
	ctx context.Context,
	docStore *storage.DocumentStore,
	oracleClient oracle.Client,
	db store.CascadeStorage,
	pipeline config.PipelineConfig,
	data *ReconstructMsg,
) (err error) {
	defer func() {
		if err == nil {
			return
		}
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if updateErr := db.FailBuild(updateCtx, data.BuildID, err.Error()); updateErr != nil {
			logger.Warn("[Queue] Failed to record build failure", "build", data.BuildID, "err", updateErr)
		}
	}()

	docs, err := loadDocuments(ctx, docStore, oracleClient, db, data.DocumentKeys)
	if err != nil {
		return err
	}

	builder, err := newBuilder(oracleClient, db, pipeline, func(state cascade.State) {
		if stateErr := db.SetBuildState(ctx, data.BuildID, state); stateErr != nil {
			logger.Warn("[Queue] Failed to persist build state", "build", data.BuildID, "state", state, "err", stateErr)
		}
	})
	if err != nil {
		return err
	}

	result, err := builder.Run(ctx, match.Query{Text: data.Query, Keywords: data.Keywords}, docs)
	if err != nil {
		return err
	}

	if err = db.SaveCascade(ctx, data.BuildID, result); err != nil {
		return err
	}

	logger.Info("[Queue] Build completed", "build", data.BuildID, "partial", result.Partial, "stages", len(result.Stages))
	return nil
}

// loadDocuments fetches each document from object storage, segments it, and
// persists it with paragraph embeddings for later similarity search.
// Embedding failures are not fatal; the document is stored without vectors.
func loadDocuments(
	ctx context.Context,
	docStore *storage.DocumentStore,
	oracleClient oracle.Client,
	db store.CascadeStorage,
	keys []string,
) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(keys))
	for _, key := range keys {
		text, err := docStore.GetDocument(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", key, err)
		}

		doc := document.Segment(storage.DocumentID(key), text)

		embeddings := make([][]float32, len(doc.Paragraphs))
		for i, p := range doc.Paragraphs {
			embedding, embErr := oracleClient.Embed(ctx, []byte(p.Text))
			if embErr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Warn("[Queue] Embedding failed, storing document without vectors", "document", doc.ID, "err", embErr)
				embeddings = nil
				break
			}
			embeddings[i] = embedding
		}

		if err := db.SaveDocument(ctx, doc, embeddings); err != nil {
			return nil, fmt.Errorf("save document %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// storedParagraphs exposes the persisted paragraph embeddings to the vector
// strategy.
type storedParagraphs struct {
	db store.CascadeStorage
}

func (s storedParagraphs) SimilarParagraphs(ctx context.Context, documentIDs []string, embedding []float32, limit int32) ([]match.ParagraphHit, error) {
	found, err := s.db.SimilarParagraphs(ctx, documentIDs, embedding, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]match.ParagraphHit, len(found))
	for i, hit := range found {
		hits[i] = match.ParagraphHit{
			DocumentID: hit.DocumentID,
			Index:      hit.Index,
			Similarity: hit.Similarity,
		}
	}
	return hits, nil
}

func newBuilder(oracleClient oracle.Client, db store.CascadeStorage, pipeline config.PipelineConfig, onTransition func(cascade.State)) (*cascade.Builder, error) {
	strategies := make([]match.Strategy, 0, len(pipeline.Strategies))
	for _, sc := range pipeline.Strategies {
		strategy, err := match.New(sc.Name, match.Deps{
			Oracle:          oracleClient,
			Search:          storedParagraphs{db: db},
			VectorThreshold: pipeline.VectorThreshold,
			TokenBudget:     pipeline.TokenBudget,
			Options:         sc.Options,
		})
		if err != nil {
			return nil, fmt.Errorf("configure strategy %s: %w", sc.Name, err)
		}
		strategies = append(strategies, strategy)
	}

	return cascade.NewBuilder(cascade.BuilderParams{
		Oracle:       oracleClient,
		Aggregator:   match.NewAggregator(strategies, pipeline.MaxConcurrency),
		Summarizer:   match.NewOracleSummarizer(oracleClient),
		OnTransition: onTransition,
	})
}
