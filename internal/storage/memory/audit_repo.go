package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/store"
)

// AuditRepository keeps audit rows in process memory. It backs the API
// when no database is configured; rows vanish with the process.
type AuditRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]store.AuditRecord
	order   []uuid.UUID
}

var _ store.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository constructs an empty repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{records: make(map[uuid.UUID]store.AuditRecord)}
}

// SaveResult upserts the row for an audit.
func (r *AuditRepository) SaveResult(_ context.Context, rec store.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.ID]; !exists {
		r.order = append(r.order, rec.ID)
	}
	rec.Detail = append([]byte(nil), rec.Detail...)
	r.records[rec.ID] = rec
	return nil
}

// UpdateStatus records a state transition for an existing row.
func (r *AuditRepository) UpdateStatus(_ context.Context, id uuid.UUID, state audit.State, failReason *string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.State = state
	rec.UpdatedAt = at
	if failReason != nil {
		reason := *failReason
		rec.FailReason = &reason
	}
	r.records[id] = rec
	return nil
}

// GetResult fetches one audit by ID.
func (r *AuditRepository) GetResult(_ context.Context, id uuid.UUID) (store.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return store.AuditRecord{}, store.ErrNotFound
	}
	return copyRecord(rec), nil
}

// ListRecent returns audits newest-first by insertion order.
func (r *AuditRepository) ListRecent(_ context.Context, limit, offset int) ([]store.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]store.AuditRecord, 0, limit)
	for i := len(r.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyRecord(r.records[r.order[i]]))
	}
	return out, nil
}

func copyRecord(rec store.AuditRecord) store.AuditRecord {
	rec.Detail = append([]byte(nil), rec.Detail...)
	if rec.FailReason != nil {
		reason := *rec.FailReason
		rec.FailReason = &reason
	}
	return rec
}
