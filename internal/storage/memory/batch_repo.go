package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/siteauditor/internal/store"
)

// BatchRepository keeps batch runs in process memory. Like the audit
// repository it backs runs when no database is configured.
type BatchRepository struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.BatchRun
	sites map[uuid.UUID][]store.SiteOutcome
	tiers map[uuid.UUID]map[string]int64
}

var _ store.BatchRepository = (*BatchRepository)(nil)

// NewBatchRepository constructs an empty repository.
func NewBatchRepository() *BatchRepository {
	return &BatchRepository{
		runs:  make(map[uuid.UUID]store.BatchRun),
		sites: make(map[uuid.UUID][]store.SiteOutcome),
		tiers: make(map[uuid.UUID]map[string]int64),
	}
}

// StartRun inserts the run, or re-marks an existing one as running.
func (r *BatchRepository) StartRun(_ context.Context, run store.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runs[run.ID]; ok {
		existing.Status = store.BatchRunning
		r.runs[run.ID] = existing
		return nil
	}
	run.Status = store.BatchRunning
	r.runs[run.ID] = run
	return nil
}

// FinishRun marks the batch finished with final counters.
func (r *BatchRepository) FinishRun(_ context.Context, batchID uuid.UUID, finishedAt time.Time, status store.BatchStatus, completed, failed int64, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[batchID]
	if !ok {
		return store.ErrNotFound
	}
	at := finishedAt
	run.FinishedAt = &at
	run.Status = status
	run.Completed = completed
	run.Failed = failed
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	r.runs[batchID] = run
	return nil
}

// RecordSite appends one site outcome.
func (r *BatchRepository) RecordSite(_ context.Context, outcome store.SiteOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[outcome.BatchID] = append(r.sites[outcome.BatchID], outcome)
	return nil
}

// UpsertTierCount applies a tier tally delta for the batch.
func (r *BatchRepository) UpsertTierCount(_ context.Context, batchID uuid.UUID, tier string, delta int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tally, ok := r.tiers[batchID]
	if !ok {
		tally = make(map[string]int64)
		r.tiers[batchID] = tally
	}
	tally[tier] += delta
	return nil
}

// GetRun loads a single batch run.
func (r *BatchRepository) GetRun(_ context.Context, batchID uuid.UUID) (store.BatchRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[batchID]
	if !ok {
		return store.BatchRun{}, store.ErrNotFound
	}
	return copyRun(run), nil
}

// TierCounts returns the tier tally sorted by tier name.
func (r *BatchRepository) TierCounts(_ context.Context, batchID uuid.UUID) ([]store.TierCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tally := r.tiers[batchID]
	out := make([]store.TierCount, 0, len(tally))
	for tier, count := range tally {
		out = append(out, store.TierCount{BatchID: batchID, Tier: tier, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

// Sites returns recorded outcomes for a batch, in arrival order.
func (r *BatchRepository) Sites(batchID uuid.UUID) []store.SiteOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.SiteOutcome, len(r.sites[batchID]))
	copy(out, r.sites[batchID])
	return out
}

func copyRun(run store.BatchRun) store.BatchRun {
	if run.FinishedAt != nil {
		at := *run.FinishedAt
		run.FinishedAt = &at
	}
	if run.ErrorMessage != nil {
		msg := *run.ErrorMessage
		run.ErrorMessage = &msg
	}
	return run
}
