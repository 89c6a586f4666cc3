package progress

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(time.Hour, slog.Default())

	id := s.Create("tenant-a", "ingest")
	rec, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, "initializing", rec.CurrentStep)
	assert.Equal(t, "tenant-a", rec.TenantID)

	s.Update(id, 3, 10, "extracting pages")
	rec, ok = s.Get(id)
	require.True(t, ok)
	assert.Equal(t, 3, rec.Completed)
	assert.Equal(t, 10, rec.Total)
	assert.Equal(t, 30, rec.Percentage)
	assert.Equal(t, "extracting pages", rec.CurrentStep)

	t.Run("percentage is capped", func(t *testing.T) {
		s.Update(id, 25, 0, "")
		rec, _ := s.Get(id)
		assert.Equal(t, 100, rec.Percentage)
	})

	t.Run("complete pins percentage", func(t *testing.T) {
		s.Complete(id)
		rec, _ := s.Get(id)
		assert.Equal(t, StatusCompleted, rec.Status)
		assert.Equal(t, 100, rec.Percentage)
	})

	t.Run("fail records the reason", func(t *testing.T) {
		fid := s.Create("tenant-a", "ingest")
		s.Fail(fid, "OCR failed: tesseract crashed")
		rec, ok := s.Get(fid)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Equal(t, "OCR failed: tesseract crashed", rec.Error)
	})

	t.Run("begin keys the record by the caller's id", func(t *testing.T) {
		jobID := uuid.New()
		s.Begin(jobID, "tenant-b", "reprocess")
		rec, ok := s.Get(jobID)
		require.True(t, ok)
		assert.Equal(t, jobID, rec.ID)
		assert.Equal(t, "tenant-b", rec.TenantID)
		assert.Equal(t, "reprocess", rec.Kind)
		assert.Equal(t, StatusRunning, rec.Status)

		// beginning the same id again resets prior state
		s.Fail(jobID, "boom")
		s.Begin(jobID, "tenant-b", "reprocess")
		rec, _ = s.Get(jobID)
		assert.Equal(t, StatusRunning, rec.Status)
		assert.Empty(t, rec.Error)
	})

	t.Run("unknown ids are ignored", func(t *testing.T) {
		ghost := uuid.New()
		s.Update(ghost, 1, 1, "x")
		s.Complete(ghost)
		s.Fail(ghost, "x")
		_, ok := s.Get(ghost)
		assert.False(t, ok)
	})
}

func TestStoreEvict(t *testing.T) {
	s := NewStore(time.Minute, slog.Default())

	stale := s.Create("tenant-a", "ingest")
	fresh := s.Create("tenant-a", "ingest")

	s.mu.Lock()
	s.records[stale].UpdatedAt = time.Now().UTC().Add(-2 * time.Minute)
	s.mu.Unlock()

	assert.Equal(t, 1, s.Evict())
	_, ok := s.Get(stale)
	assert.False(t, ok)
	_, ok = s.Get(fresh)
	assert.True(t, ok)
	assert.Zero(t, s.Evict())
}

func TestStoreDefaultTTL(t *testing.T) {
	s := NewStore(0, slog.Default())
	assert.Equal(t, 24*time.Hour, s.ttl)
}
