package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadfoundry/siteauditor/internal/store"
)

// BatchStore implements store.BatchRepository on Postgres.
type BatchStore struct {
	db pool
}

var _ store.BatchRepository = (*BatchStore)(nil)

// NewBatchStore connects its own pool from the DSN.
func NewBatchStore(ctx context.Context, dsn string) (*BatchStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &BatchStore{db: db}, nil
}

// NewBatchStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewBatchStoreWithPool(db pool) (*BatchStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &BatchStore{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *BatchStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// InitSchema creates the batch tables when absent.
func (s *BatchStore) InitSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id UUID PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	total BIGINT NOT NULL DEFAULT 0,
	completed BIGINT NOT NULL DEFAULT 0,
	failed BIGINT NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE TABLE IF NOT EXISTS batch_sites (
	batch_id UUID NOT NULL,
	site TEXT NOT NULL,
	url TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT '',
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	state TEXT NOT NULL,
	fail_reason TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS batch_sites_batch_idx ON batch_sites (batch_id);
CREATE TABLE IF NOT EXISTS batch_tier_counts (
	batch_id UUID NOT NULL,
	tier TEXT NOT NULL,
	count BIGINT NOT NULL DEFAULT 0,
	last_update TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, tier)
);
`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create batch schema: %w", err)
	}
	return nil
}

// StartRun inserts the batch row, or re-marks it running on restart.
func (s *BatchStore) StartRun(ctx context.Context, run store.BatchRun) error {
	query := `
		INSERT INTO batch_runs (id, source, started_at, status, total)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, total = EXCLUDED.total
		WHERE batch_runs.status <> EXCLUDED.status;
	`
	_, err := s.db.Exec(ctx, query, run.ID, run.Source, run.StartedAt, store.BatchRunning, run.Total)
	if err != nil {
		return fmt.Errorf("start batch run: %w", err)
	}
	return nil
}

// FinishRun marks the batch finished with its final counters.
func (s *BatchStore) FinishRun(
	ctx context.Context,
	batchID uuid.UUID,
	finishedAt time.Time,
	status store.BatchStatus,
	completed, failed int64,
	errMsg *string,
) error {
	query := `
		UPDATE batch_runs
		SET finished_at = $1, status = $2, completed = $3, failed = $4, error_message = $5
		WHERE id = $6;
	`
	_, err := s.db.Exec(ctx, query, finishedAt, status, completed, failed, errMsg, batchID)
	if err != nil {
		return fmt.Errorf("finish batch run: %w", err)
	}
	return nil
}

// RecordSite appends one site outcome row.
func (s *BatchStore) RecordSite(ctx context.Context, outcome store.SiteOutcome) error {
	query := `
		INSERT INTO batch_sites (batch_id, site, url, tier, score, state, fail_reason, duration_ms, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := s.db.Exec(
		ctx,
		query,
		outcome.BatchID,
		outcome.Site,
		outcome.URL,
		outcome.Tier,
		outcome.Score,
		outcome.State,
		outcome.FailReason,
		outcome.Duration.Milliseconds(),
		outcome.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record batch site: %w", err)
	}
	return nil
}

// UpsertTierCount applies a tally delta for (batch, tier).
func (s *BatchStore) UpsertTierCount(ctx context.Context, batchID uuid.UUID, tier string, delta int64, at time.Time) error {
	query := `
		INSERT INTO batch_tier_counts (batch_id, tier, count, last_update)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (batch_id, tier) DO UPDATE
		SET count = batch_tier_counts.count + EXCLUDED.count,
		    last_update = EXCLUDED.last_update;
	`
	_, err := s.db.Exec(ctx, query, batchID, tier, delta, at)
	if err != nil {
		return fmt.Errorf("upsert tier count: %w", err)
	}
	return nil
}

// GetRun retrieves a single batch run by its ID.
func (s *BatchStore) GetRun(ctx context.Context, batchID uuid.UUID) (store.BatchRun, error) {
	query := `
		SELECT id, source, started_at, finished_at, status, total, completed, failed, error_message
		FROM batch_runs
		WHERE id = $1;
	`
	var run store.BatchRun
	err := s.db.QueryRow(ctx, query, batchID).Scan(
		&run.ID,
		&run.Source,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Total,
		&run.Completed,
		&run.Failed,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.BatchRun{}, store.ErrNotFound
		}
		return store.BatchRun{}, fmt.Errorf("get batch run: %w", err)
	}
	return run, nil
}

// TierCounts retrieves the tier tally for one batch.
func (s *BatchStore) TierCounts(ctx context.Context, batchID uuid.UUID) ([]store.TierCount, error) {
	query := `
		SELECT batch_id, tier, count
		FROM batch_tier_counts
		WHERE batch_id = $1
		ORDER BY tier;
	`
	rows, err := s.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list tier counts: %w", err)
	}
	defer rows.Close()

	var counts []store.TierCount
	for rows.Next() {
		var tc store.TierCount
		if err := rows.Scan(&tc.BatchID, &tc.Tier, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tier count row: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tier counts: %w", err)
	}
	return counts, nil
}
