package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BatchStatus mirrors the batch_runs status column.
type BatchStatus string

// Batch run statuses persisted in batch_runs.status.
const (
	BatchRunning BatchStatus = "running"
	BatchSuccess BatchStatus = "success"
	BatchError   BatchStatus = "error"
)

// BatchRun models the batch_runs table.
type BatchRun struct {
	ID uuid.UUID
	// Source names the prospect input, e.g. a CSV path or "api".
	Source    string
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	Status     BatchStatus
	// Total is the number of sites admitted into the run.
	Total     int64
	Completed int64
	Failed    int64
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SiteOutcome captures one site's terminal result within a batch.
type SiteOutcome struct {
	BatchID uuid.UUID
	// Site is the normalized host label (e.g. smithcpa.com).
	Site string
	URL  string
	// Tier and Score are empty/zero for failed sites.
	Tier  string
	Score float64
	State string
	// FailReason is empty unless the site failed to load.
	FailReason string
	Duration   time.Duration
	FinishedAt time.Time
}

// TierCount is one row of the per-batch tier tally.
type TierCount struct {
	BatchID uuid.UUID
	Tier    string
	Count   int64
}

// BatchRepository persists batch runs and their per-site outcomes.
type BatchRepository interface {
	// StartRun inserts (or idempotently re-marks) a running batch.
	StartRun(ctx context.Context, run BatchRun) error
	// FinishRun marks the batch finished with final counters.
	FinishRun(ctx context.Context, batchID uuid.UUID, finishedAt time.Time, status BatchStatus, completed, failed int64, errMsg *string) error
	// RecordSite appends one site outcome.
	RecordSite(ctx context.Context, outcome SiteOutcome) error
	// UpsertTierCount applies a tier tally delta for the batch.
	UpsertTierCount(ctx context.Context, batchID uuid.UUID, tier string, delta int64, at time.Time) error
	// GetRun loads a single batch run or returns ErrNotFound.
	GetRun(ctx context.Context, batchID uuid.UUID) (BatchRun, error)
	// TierCounts returns the tier tally for one batch.
	TierCounts(ctx context.Context, batchID uuid.UUID) ([]TierCount, error)
}
