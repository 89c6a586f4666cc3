package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
)

// JobRepository persists ingestion jobs. Save is a whole-record upsert:
// the orchestrator mutates its in-memory Job and flushes after every unit
// of work, which is what makes a restart resume instead of redo.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Save(ctx context.Context, job *entity.Job) error
	ListByTenant(ctx context.Context, tenantID string) ([]entity.Job, error)
	// LatestForDocument returns the most recently updated job for a
	// document, which is authoritative for that document's indexing state.
	LatestForDocument(ctx context.Context, tenantID, documentID string) (*entity.Job, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &jobRepo{pool: pool, log: log}
}

const jobColumns = `id, tenant_id, document_id, filename, status,
	pages_total, pages_done, fragments_total, fragments_done,
	ocr_attempted, ocr_available, ocr_preset, error_message, reprocess_mode,
	created_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	job.ApplyReadyInvariant()
	const q = `
		INSERT INTO ingest_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`
	_, err := r.pool.Exec(ctx, q,
		job.ID, job.TenantID, job.DocumentID, job.Filename, job.Status,
		job.PagesTotal, job.PagesDone, job.FragmentsTotal, job.FragmentsDone,
		job.OCRAttempted, job.OCRAvailable, job.OCRPreset, job.Error, job.ReprocessMode,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return common.WrapError(err, "create job")
	}
	r.log.Info("job created", "job_id", job.ID, "tenant_id", job.TenantID, "document_id", job.DocumentID)
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM ingest_jobs WHERE id = $1`
	row := r.pool.QueryRow(ctx, q, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) Save(ctx context.Context, job *entity.Job) error {
	job.ApplyReadyInvariant()
	job.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE ingest_jobs SET
			status = $2, pages_total = $3, pages_done = $4,
			fragments_total = $5, fragments_done = $6,
			ocr_attempted = $7, ocr_available = $8,
			error_message = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, q,
		job.ID, job.Status, job.PagesTotal, job.PagesDone,
		job.FragmentsTotal, job.FragmentsDone,
		job.OCRAttempted, job.OCRAvailable,
		job.Error, job.UpdatedAt,
	)
	if err != nil {
		r.log.Error("job save failed", "job_id", job.ID, "err", err)
		return common.WrapError(err, "save job")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *jobRepo) ListByTenant(ctx context.Context, tenantID string) ([]entity.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM ingest_jobs WHERE tenant_id = $1 ORDER BY updated_at DESC`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, common.WrapError(err, "list jobs")
	}
	defer rows.Close()

	var out []entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (r *jobRepo) LatestForDocument(ctx context.Context, tenantID, documentID string) (*entity.Job, error) {
	const q = `
		SELECT ` + jobColumns + ` FROM ingest_jobs
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY updated_at DESC LIMIT 1
	`
	row := r.pool.QueryRow(ctx, q, tenantID, documentID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var j entity.Job
	err := row.Scan(
		&j.ID, &j.TenantID, &j.DocumentID, &j.Filename, &j.Status,
		&j.PagesTotal, &j.PagesDone, &j.FragmentsTotal, &j.FragmentsDone,
		&j.OCRAttempted, &j.OCRAvailable, &j.OCRPreset, &j.Error, &j.ReprocessMode,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
