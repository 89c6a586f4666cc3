package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/async"
	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
	"github.com/tade-balogun/policy-engine/internal/pipeline"
	"github.com/tade-balogun/policy-engine/internal/progress"
	"github.com/tade-balogun/policy-engine/internal/repository"
	"github.com/tade-balogun/policy-engine/internal/storage"
)

const defaultSearchTopK = 5

// FragmentIndex is the slice of the vector collection the intake layer
// needs: purge on delete, live counts for diagnostics and similarity
// lookups for downstream consumers.
type FragmentIndex interface {
	pipeline.FragmentStore
	CountByDocument(ctx context.Context, tenantID, documentID string) (int, error)
	Search(ctx context.Context, tenantID string, queryVec []float32, topK int, documentIDs []string) ([]entity.SearchHit, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service is the intake surface: it accepts uploads, schedules processing
// and answers progress queries. The heavy lifting happens in the pipeline
// workers; everything here returns quickly.
type Service struct {
	jobs      repository.JobRepository
	manifests repository.ManifestRepository
	files     *storage.FileStore
	fragments FragmentIndex
	embedder  QueryEmbedder
	queue     *async.ProcessorQueue
	tracker   *progress.Store
	logger    *slog.Logger
}

func NewService(
	jobs repository.JobRepository,
	manifests repository.ManifestRepository,
	files *storage.FileStore,
	fragments FragmentIndex,
	embedder QueryEmbedder,
	queue *async.ProcessorQueue,
	tracker *progress.Store,
	logger *slog.Logger,
) *Service {
	return &Service{
		jobs:      jobs,
		manifests: manifests,
		files:     files,
		fragments: fragments,
		embedder:  embedder,
		queue:     queue,
		tracker:   tracker,
		logger:    logger,
	}
}

// Upload persists the document bytes and schedules a processing job. The
// returned job is QUEUED; processing happens asynchronously.
func (s *Service) Upload(ctx context.Context, tenantID, documentID, filename string, content []byte, preset constants.OCRPreset) (*entity.Job, error) {
	if tenantID == "" || documentID == "" || filename == "" {
		return nil, common.NewAppError("INVALID_UPLOAD", "tenant id, document id and filename are required", common.ErrInvalidInput)
	}
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, common.NewAppError("UNSUPPORTED_FILE_TYPE",
			fmt.Sprintf("file extension %q is not supported", ext), common.ErrInvalidInput)
	}
	if len(content) == 0 {
		return nil, common.NewAppError("EMPTY_UPLOAD", "uploaded file is empty", common.ErrInvalidInput)
	}

	path, err := s.files.SaveUpload(tenantID, documentID, filename, content)
	if err != nil {
		return nil, common.NewAppError("UPLOAD_STORE_FAILED", "could not persist upload", err)
	}
	s.logger.Info("stored upload",
		"tenant_id", tenantID, "document_id", documentID, "path", path, "bytes", len(content))

	job := entity.NewJob(tenantID, documentID, filename, constants.ReprocessNone, preset)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	s.tracker.Begin(job.ID, tenantID, "ingest")
	s.tracker.Update(job.ID, 0, 0, "queued")

	if err := s.queue.Enqueue(ctx, async.Job{JobID: job.ID}); err != nil {
		return nil, err
	}
	return job, nil
}

// Reprocess schedules a new job for an already-uploaded document.
func (s *Service) Reprocess(ctx context.Context, tenantID, documentID string, mode constants.ReprocessMode, preset constants.OCRPreset) (*entity.Job, error) {
	last, err := s.jobs.LatestForDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	job := entity.NewJob(tenantID, documentID, last.Filename, mode, preset)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("scheduled reprocess",
		"tenant_id", tenantID, "document_id", documentID, "mode", mode, "job_id", job.ID)

	s.tracker.Begin(job.ID, tenantID, "reprocess")
	s.tracker.Update(job.ID, 0, 0, "queued")

	if err := s.queue.Enqueue(ctx, async.Job{JobID: job.ID}); err != nil {
		return nil, err
	}
	return job, nil
}

// Status returns the progress snapshot for one job.
func (s *Service) Status(ctx context.Context, jobID uuid.UUID) (entity.Progress, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return entity.Progress{}, err
	}
	return job.Snapshot(), nil
}

// Live returns the in-process progress record for a job, if it has not
// been evicted. The durable truth is Status; this adds the current step.
func (s *Service) Live(jobID uuid.UUID) (progress.Record, bool) {
	return s.tracker.Get(jobID)
}

// ListJobs returns a tenant's jobs, most recently updated first.
func (s *Service) ListJobs(ctx context.Context, tenantID string) ([]entity.Job, error) {
	return s.jobs.ListByTenant(ctx, tenantID)
}

// DocumentState returns the manifest for per-page diagnostics together
// with the live fragment count from the vector collection, so staleness
// between the two is visible.
func (s *Service) DocumentState(ctx context.Context, tenantID, documentID string) (*entity.Manifest, int, error) {
	manifest, err := s.manifests.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, 0, err
	}
	indexed, err := s.fragments.CountByDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, 0, err
	}
	return manifest, indexed, nil
}

// Search embeds the query text and returns the nearest indexed fragments,
// optionally restricted to specific documents.
func (s *Service) Search(ctx context.Context, tenantID, query string, topK int, documentIDs []string) ([]entity.SearchHit, error) {
	if tenantID == "" {
		return nil, common.NewAppError("INVALID_SEARCH", "tenant id is required", common.ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return nil, common.NewAppError("EMPTY_QUERY", "search query is empty", common.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, common.NewAppError("QUERY_EMBED_FAILED", "could not embed search query", err)
	}
	return s.fragments.Search(ctx, tenantID, vec, topK, documentIDs)
}

// Delete purges everything the pipeline holds for a document: indexed
// fragments, the manifest and the on-disk source plus page text.
func (s *Service) Delete(ctx context.Context, tenantID, documentID string) error {
	if _, err := s.fragments.DeleteByDocument(ctx, tenantID, documentID); err != nil {
		return err
	}
	if err := s.manifests.Delete(ctx, tenantID, documentID); err != nil {
		return err
	}
	if err := s.files.DeleteDocument(tenantID, documentID); err != nil {
		return err
	}
	s.logger.Info("purged document", "tenant_id", tenantID, "document_id", documentID)
	return nil
}
