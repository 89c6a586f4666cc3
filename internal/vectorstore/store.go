package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/tade-balogun/policy-engine/internal/entity"
)

var tenantSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// Store keeps indexed fragments in per-tenant pgvector tables. Each tenant
// gets its own policy_chunks_<tenant> table, created on first use.
type Store struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger

	ensured map[string]struct{}
}

func New(db *sql.DB, dims int, logger *slog.Logger) *Store {
	return &Store{db: db, dims: dims, logger: logger, ensured: make(map[string]struct{})}
}

// tableName derives a safe SQL identifier from the tenant id.
func tableName(tenantID string) string {
	safe := tenantSanitizer.ReplaceAllString(strings.ToLower(tenantID), "_")
	return "policy_chunks_" + safe
}

// EnsureCollection creates the tenant's fragment table if it does not exist.
func (s *Store) EnsureCollection(ctx context.Context, tenantID string) error {
	table := tableName(tenantID)
	if _, ok := s.ensured[table]; ok {
		return nil
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			document_id TEXT NOT NULL,
			filename    TEXT NOT NULL,
			page        INT  NOT NULL,
			ordinal     INT  NOT NULL,
			line_start  INT  NOT NULL,
			line_end    INT  NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d)
		)`, table, s.dims)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure collection %s: %w", table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, table, table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("ensure collection index %s: %w", table, err)
	}
	s.ensured[table] = struct{}{}
	return nil
}

// Upsert writes one batch of embedded fragments in a single transaction.
func (s *Store) Upsert(ctx context.Context, tenantID string, fragments []entity.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, tenantID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
			(id, tenant_id, document_id, filename, page, ordinal, line_start, line_end, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			filename   = EXCLUDED.filename,
			page       = EXCLUDED.page,
			ordinal    = EXCLUDED.ordinal,
			line_start = EXCLUDED.line_start,
			line_end   = EXCLUDED.line_end,
			content    = EXCLUDED.content,
			embedding  = EXCLUDED.embedding`, tableName(tenantID))

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range fragments {
		f := &fragments[i]
		vec := pgvector.NewVector(f.Embedding)
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.TenantID, f.DocumentID, f.Filename, f.Page, f.Ordinal, f.LineStart, f.LineEnd, f.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert fragment %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteByDocument removes every fragment of one document. Missing tables
// are treated as empty, so deleting before first index is a no-op.
func (s *Store) DeleteByDocument(ctx context.Context, tenantID, documentID string) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, tableName(tenantID))
	res, err := s.db.ExecContext(ctx, q, documentID)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete fragments for %s: %w", documentID, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("deleted document fragments", "tenant_id", tenantID, "document_id", documentID, "count", n)
	}
	return n, nil
}

// CountByDocument reports how many fragments a document has indexed.
func (s *Store) CountByDocument(ctx context.Context, tenantID, documentID string) (int, error) {
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE document_id = $1`, tableName(tenantID))
	var n int
	if err := s.db.QueryRowContext(ctx, q, documentID).Scan(&n); err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Search returns the fragments nearest to the query embedding, optionally
// restricted to a set of documents.
func (s *Store) Search(ctx context.Context, tenantID string, queryVec []float32, topK int, documentIDs []string) ([]entity.SearchHit, error) {
	var (
		q    string
		args []any
	)
	vec := pgvector.NewVector(queryVec)
	if len(documentIDs) > 0 {
		q = fmt.Sprintf(`
			SELECT id, document_id, filename, page, ordinal, line_start, line_end, content,
			       embedding <=> $1 AS distance
			FROM %s
			WHERE document_id = ANY($2)
			ORDER BY embedding <=> $1
			LIMIT $3`, tableName(tenantID))
		args = []any{vec, documentIDs, topK}
	} else {
		q = fmt.Sprintf(`
			SELECT id, document_id, filename, page, ordinal, line_start, line_end, content,
			       embedding <=> $1 AS distance
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2`, tableName(tenantID))
		args = []any{vec, topK}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search fragments: %w", err)
	}
	defer rows.Close()

	var hits []entity.SearchHit
	for rows.Next() {
		var (
			hit      entity.SearchHit
			distance float64
		)
		if err := rows.Scan(&hit.ID, &hit.DocumentID, &hit.Filename, &hit.Page,
			&hit.Ordinal, &hit.LineStart, &hit.LineEnd, &hit.Text, &distance); err != nil {
			return nil, err
		}
		hit.TenantID = tenantID
		hit.Score = 1.0 - distance
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func isUndefinedTable(err error) bool {
	// pgx surfaces SQLSTATE 42P01 for missing relations
	return err != nil && strings.Contains(err.Error(), "42P01")
}
