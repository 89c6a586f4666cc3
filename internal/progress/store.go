package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of one tracked operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record tracks one ephemeral long-running operation. Unlike the durable
// job record this is advisory: it exists for live progress display and is
// evicted after a TTL.
type Record struct {
	ID          uuid.UUID `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Kind        string    `json:"kind"`
	Status      Status    `json:"status"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	CurrentStep string    `json:"current_step"`
	Percentage  int       `json:"percentage"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is an in-memory TTL store for operation progress. Records are
// inserted on create, updated as the operation advances and evicted by a
// background janitor once they go stale.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
	ttl     time.Duration
	logger  *slog.Logger
}

func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		records: make(map[uuid.UUID]*Record),
		ttl:     ttl,
		logger:  logger,
	}
}

// Create registers a running operation and returns its generated id.
func (s *Store) Create(tenantID, kind string) uuid.UUID {
	id := uuid.New()
	s.Begin(id, tenantID, kind)
	return id
}

// Begin registers a running operation under a caller-supplied id, so a
// record can share its job's id and be looked up by it. Beginning an id
// again resets the record.
func (s *Store) Begin(id uuid.UUID, tenantID, kind string) {
	now := time.Now().UTC()
	rec := &Record{
		ID:          id,
		TenantID:    tenantID,
		Kind:        kind,
		Status:      StatusRunning,
		CurrentStep: "initializing",
		StartedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
}

// Update advances an operation's counters. Unknown ids are ignored, the
// record may already have been evicted.
func (s *Store) Update(id uuid.UUID, completed, total int, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return
	}
	if total > 0 {
		rec.Total = total
	}
	if completed >= 0 {
		rec.Completed = completed
	}
	if step != "" {
		rec.CurrentStep = step
	}
	if rec.Total > 0 {
		pct := rec.Completed * 100 / rec.Total
		if pct > 100 {
			pct = 100
		}
		rec.Percentage = pct
	}
	rec.UpdatedAt = time.Now().UTC()
}

// Complete marks an operation finished.
func (s *Store) Complete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = StatusCompleted
		rec.Percentage = 100
		rec.UpdatedAt = time.Now().UTC()
	}
}

// Fail marks an operation failed with a reason.
func (s *Store) Fail(id uuid.UUID, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = StatusFailed
		rec.Error = errMsg
		rec.UpdatedAt = time.Now().UTC()
	}
}

// Get returns a copy of the record, or false if evicted or unknown.
func (s *Store) Get(id uuid.UUID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Evict removes records idle longer than the TTL and returns how many went.
func (s *Store) Evict() int {
	cutoff := time.Now().UTC().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// Janitor evicts stale records periodically until ctx is cancelled.
func (s *Store) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.Debug("evicted stale progress records", "count", n)
			}
		}
	}
}
