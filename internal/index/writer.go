package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
)

// Upserter is the slice of the vector store the writer needs.
type Upserter interface {
	Upsert(ctx context.Context, tenantID string, fragments []entity.Fragment) error
}

// ProgressFunc is called after every indexed batch with the cumulative
// fragment count, so job records and manifests track partial progress.
type ProgressFunc func(ctx context.Context, done int) error

// Writer embeds fragments in batches and upserts them into the vector
// store. Progress is flushed after each batch; a crash mid-document leaves
// consistent partial state behind.
type Writer struct {
	embedder   Embedder
	store      Upserter
	batchSize  int
	upsertSize int
	logger     *slog.Logger
}

func NewWriter(embedder Embedder, store Upserter, cfg common.EmbeddingConfig, logger *slog.Logger) *Writer {
	return &Writer{
		embedder:   embedder,
		store:      store,
		batchSize:  cfg.BatchSize,
		upsertSize: cfg.UpsertSize,
		logger:     logger,
	}
}

// Index embeds and upserts all fragments, returning how many were indexed.
func (w *Writer) Index(ctx context.Context, tenantID string, fragments []entity.Fragment, progress ProgressFunc) (int, error) {
	done := 0
	for start := 0; start < len(fragments); start += w.batchSize {
		end := start + w.batchSize
		if end > len(fragments) {
			end = len(fragments)
		}
		batch := fragments[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		w.logger.Debug("embedding batch", "batch", start/w.batchSize+1, "fragments", len(batch))
		vectors, err := w.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return done, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		for us := 0; us < len(batch); us += w.upsertSize {
			ue := us + w.upsertSize
			if ue > len(batch) {
				ue = len(batch)
			}
			if err := w.store.Upsert(ctx, tenantID, batch[us:ue]); err != nil {
				return done, fmt.Errorf("upsert batch at %d: %w", start+us, err)
			}
		}

		done += len(batch)
		if progress != nil {
			if err := progress(ctx, done); err != nil {
				return done, err
			}
		}
		w.logger.Info("indexed fragments", "done", done, "total", len(fragments))
	}
	return done, nil
}
