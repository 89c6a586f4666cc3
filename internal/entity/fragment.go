package entity

import "fmt"

// Fragment is a bounded, line-addressable span of cleaned page text
// destined for the vector index. Line offsets are exact 1-indexed positions
// in the page's persisted text. The embedding is attached just before
// upsert and persisted nowhere else.
type Fragment struct {
	ID         string
	TenantID   string
	DocumentID string
	Filename   string
	Page       int
	Ordinal    int
	LineStart  int
	LineEnd    int
	Text       string
	Embedding  []float32
}

// SearchHit is a fragment returned from a similarity query, scored so that
// higher is closer.
type SearchHit struct {
	ID         string
	TenantID   string
	DocumentID string
	Filename   string
	Page       int
	Ordinal    int
	LineStart  int
	LineEnd    int
	Text       string
	Score      float64
}

// FragmentID is deterministic across runs: identical cleaned input yields
// identical ids, which makes delete-then-reinsert naturally idempotent.
func FragmentID(documentID string, page, ordinal int) string {
	return fmt.Sprintf("%s:p%d:c%d", documentID, page, ordinal)
}
