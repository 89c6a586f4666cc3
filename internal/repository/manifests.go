package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/entity"
)

// ManifestRepository persists per-document checkpoints. The whole record is
// saved on every mutation, mirroring the page-by-page flush discipline the
// resumability contract depends on.
type ManifestRepository interface {
	Get(ctx context.Context, tenantID, documentID string) (*entity.Manifest, error)
	Save(ctx context.Context, m *entity.Manifest) error
	Delete(ctx context.Context, tenantID, documentID string) error
}

type manifestRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewManifestRepository(pool *pgxpool.Pool, log *slog.Logger) ManifestRepository {
	return &manifestRepo{pool: pool, log: log}
}

func (r *manifestRepo) Get(ctx context.Context, tenantID, documentID string) (*entity.Manifest, error) {
	const q = `
		SELECT tenant_id, document_id, filename, file_hash, pages, fragments, status, created_at, updated_at
		FROM manifests WHERE tenant_id = $1 AND document_id = $2
	`
	var (
		m     entity.Manifest
		pages []byte
	)
	err := r.pool.QueryRow(ctx, q, tenantID, documentID).Scan(
		&m.TenantID, &m.DocumentID, &m.Filename, &m.FileHash,
		&pages, &m.Fragments, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get manifest")
	}
	if err := json.Unmarshal(pages, &m.Pages); err != nil {
		return nil, common.WrapError(err, "decode manifest pages")
	}
	return &m, nil
}

func (r *manifestRepo) Save(ctx context.Context, m *entity.Manifest) error {
	m.UpdatedAt = time.Now().UTC()
	pages, err := json.Marshal(m.Pages)
	if err != nil {
		return common.WrapError(err, "encode manifest pages")
	}
	const q = `
		INSERT INTO manifests (tenant_id, document_id, filename, file_hash, pages, fragments, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tenant_id, document_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			file_hash = EXCLUDED.file_hash,
			pages = EXCLUDED.pages,
			fragments = EXCLUDED.fragments,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, q,
		m.TenantID, m.DocumentID, m.Filename, m.FileHash,
		pages, m.Fragments, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		r.log.Error("manifest save failed", "tenant_id", m.TenantID, "document_id", m.DocumentID, "err", err)
		return common.WrapError(err, "save manifest")
	}
	return nil
}

func (r *manifestRepo) Delete(ctx context.Context, tenantID, documentID string) error {
	const q = `DELETE FROM manifests WHERE tenant_id = $1 AND document_id = $2`
	_, err := r.pool.Exec(ctx, q, tenantID, documentID)
	if err != nil {
		return common.WrapError(err, "delete manifest")
	}
	return nil
}
