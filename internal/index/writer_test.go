package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
)

type stubEmbedder struct {
	calls   [][]string
	failAt  int // 1-indexed call number that errors, 0 for never
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.failAt > 0 && len(s.calls) == s.failAt {
		return nil, errors.New("embedding endpoint down")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	return vectors, nil
}

type stubUpserter struct {
	batches [][]entity.Fragment
	err     error
}

func (s *stubUpserter) Upsert(_ context.Context, _ string, fragments []entity.Fragment) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]entity.Fragment(nil), fragments...))
	return nil
}

func fragments(n int) []entity.Fragment {
	out := make([]entity.Fragment, n)
	for i := range out {
		out[i] = entity.Fragment{
			ID:   fmt.Sprintf("doc-1:p1:c%d", i),
			Text: fmt.Sprintf("fragment number %d", i),
		}
	}
	return out
}

func newTestWriter(embedder Embedder, store Upserter, batch, upsert int) *Writer {
	return NewWriter(embedder, store, common.EmbeddingConfig{BatchSize: batch, UpsertSize: upsert}, slog.Default())
}

func TestWriterIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("batches embeds and sub-batches upserts", func(t *testing.T) {
		embedder := &stubEmbedder{}
		store := &stubUpserter{}
		w := newTestWriter(embedder, store, 4, 2)

		var reported []int
		done, err := w.Index(ctx, "tenant-a", fragments(10), func(_ context.Context, n int) error {
			reported = append(reported, n)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10, done)

		// 10 fragments in embed batches of 4: 4 + 4 + 2
		require.Len(t, embedder.calls, 3)
		assert.Len(t, embedder.calls[0], 4)
		assert.Len(t, embedder.calls[2], 2)

		// each embed batch upserted in chunks of 2
		require.Len(t, store.batches, 5)
		for _, b := range store.batches {
			assert.LessOrEqual(t, len(b), 2)
			for _, f := range b {
				assert.NotEmpty(t, f.Embedding, "fragment %s upserted without a vector", f.ID)
			}
		}

		assert.Equal(t, []int{4, 8, 10}, reported)
	})

	t.Run("no fragments is a no-op", func(t *testing.T) {
		embedder := &stubEmbedder{}
		store := &stubUpserter{}
		w := newTestWriter(embedder, store, 4, 2)

		done, err := w.Index(ctx, "tenant-a", nil, nil)
		require.NoError(t, err)
		assert.Zero(t, done)
		assert.Empty(t, embedder.calls)
	})

	t.Run("embed failure keeps the completed count", func(t *testing.T) {
		embedder := &stubEmbedder{failAt: 2}
		store := &stubUpserter{}
		w := newTestWriter(embedder, store, 4, 4)

		done, err := w.Index(ctx, "tenant-a", fragments(10), nil)
		require.Error(t, err)
		assert.Equal(t, 4, done)
		assert.Contains(t, err.Error(), "embed batch at 4")
	})

	t.Run("upsert failure aborts", func(t *testing.T) {
		embedder := &stubEmbedder{}
		store := &stubUpserter{err: errors.New("connection reset")}
		w := newTestWriter(embedder, store, 4, 4)

		done, err := w.Index(ctx, "tenant-a", fragments(4), nil)
		require.Error(t, err)
		assert.Zero(t, done)
	})

	t.Run("progress error stops indexing", func(t *testing.T) {
		embedder := &stubEmbedder{}
		store := &stubUpserter{}
		w := newTestWriter(embedder, store, 2, 2)

		done, err := w.Index(ctx, "tenant-a", fragments(6), func(_ context.Context, n int) error {
			if n >= 2 {
				return errors.New("job record gone")
			}
			return nil
		})
		require.Error(t, err)
		assert.Equal(t, 2, done)
		require.Len(t, embedder.calls, 1)
	})
}
