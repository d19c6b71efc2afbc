// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/scoring"
	"github.com/leadfoundry/siteauditor/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool for audit rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the slice of pgxpool the stores use; pgxmock stands in for it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// AuditStore implements store.AuditRepository on Postgres.
type AuditStore struct {
	db    pool
	table string
}

var _ store.AuditRepository = (*AuditStore)(nil)

// NewAuditStore connects a pool using the provided config and verifies the
// connection with a ping.
func NewAuditStore(ctx context.Context, cfg Config) (*AuditStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "audits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &AuditStore{db: db, table: table}, nil
}

// NewAuditStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewAuditStoreWithPool(db pool, table string) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "audits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &AuditStore{db: db, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *AuditStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// InitSchema creates the audits table and its index when absent.
func (s *AuditStore) InitSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id UUID PRIMARY KEY,
	url TEXT NOT NULL,
	final_url TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	tier TEXT NOT NULL DEFAULT '',
	grade TEXT NOT NULL DEFAULT '',
	load_ms BIGINT NOT NULL DEFAULT 0,
	rendered BOOLEAN NOT NULL DEFAULT FALSE,
	report_path TEXT NOT NULL DEFAULT '',
	fail_reason TEXT,
	detail JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_created_at_idx ON %[1]s (created_at DESC);
`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create audits schema: %w", err)
	}
	return nil
}

// SaveResult upserts the terminal row for an audit.
func (s *AuditStore) SaveResult(ctx context.Context, rec store.AuditRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, url, final_url, company_name, state,
	score, percentage, tier, grade,
	load_ms, rendered, report_path, fail_reason, detail,
	created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (id) DO UPDATE SET
	final_url = EXCLUDED.final_url,
	state = EXCLUDED.state,
	score = EXCLUDED.score,
	percentage = EXCLUDED.percentage,
	tier = EXCLUDED.tier,
	grade = EXCLUDED.grade,
	load_ms = EXCLUDED.load_ms,
	rendered = EXCLUDED.rendered,
	report_path = EXCLUDED.report_path,
	fail_reason = EXCLUDED.fail_reason,
	detail = EXCLUDED.detail,
	updated_at = EXCLUDED.updated_at`, s.table)

	args := []any{
		rec.ID,
		rec.URL,
		rec.FinalURL,
		rec.CompanyName,
		string(rec.State),
		rec.Score,
		rec.Percentage,
		string(rec.Tier),
		rec.Grade,
		rec.LoadTime.Milliseconds(),
		rec.Rendered,
		rec.ReportPath,
		rec.FailReason,
		rec.Detail,
		rec.CreatedAt,
		rec.UpdatedAt,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save audit: %w", err)
	}
	return nil
}

// UpdateStatus records an in-flight state transition.
func (s *AuditStore) UpdateStatus(ctx context.Context, id uuid.UUID, state audit.State, failReason *string, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET state = $1, fail_reason = COALESCE($2, fail_reason), updated_at = $3
WHERE id = $4`, s.table)

	tag, err := s.db.Exec(ctx, query, string(state), failReason, at, id)
	if err != nil {
		return fmt.Errorf("update audit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const auditColumns = `id, url, final_url, company_name, state,
	score, percentage, tier, grade,
	load_ms, rendered, report_path, fail_reason, detail,
	created_at, updated_at`

// GetResult loads one audit or returns store.ErrNotFound.
func (s *AuditStore) GetResult(ctx context.Context, id uuid.UUID) (store.AuditRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, auditColumns, s.table)

	rec, err := scanAudit(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.AuditRecord{}, store.ErrNotFound
		}
		return store.AuditRecord{}, fmt.Errorf("get audit: %w", err)
	}
	return rec, nil
}

// ListRecent returns audits newest-first.
func (s *AuditStore) ListRecent(ctx context.Context, limit, offset int) ([]store.AuditRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`, auditColumns, s.table)

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	return out, nil
}

func scanAudit(row pgx.Row) (store.AuditRecord, error) {
	var (
		rec    store.AuditRecord
		state  string
		tier   string
		loadMS int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.URL,
		&rec.FinalURL,
		&rec.CompanyName,
		&state,
		&rec.Score,
		&rec.Percentage,
		&tier,
		&rec.Grade,
		&loadMS,
		&rec.Rendered,
		&rec.ReportPath,
		&rec.FailReason,
		&rec.Detail,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return store.AuditRecord{}, err
	}
	rec.State = audit.State(state)
	rec.Tier = scoring.Tier(tier)
	rec.LoadTime = time.Duration(loadMS) * time.Millisecond
	return rec, nil
}
