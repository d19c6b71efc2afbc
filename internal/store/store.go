// Package store declares the persistence contracts for audit outcomes and
// batch runs. Implementations live in other packages; this package must not
// import database drivers or concrete clients.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/scoring"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AuditRecord models one row of the audits table. Summary columns are
// queryable; Detail carries the full category breakdown as JSON for API
// reads.
type AuditRecord struct {
	ID          uuid.UUID
	URL         string
	FinalURL    string
	CompanyName string
	State       audit.State
	// Score and Percentage are zero until the audit reaches DONE or
	// PARTIAL.
	Score      float64
	Percentage float64
	Tier       scoring.Tier
	Grade      string
	LoadTime   time.Duration
	Rendered   bool
	ReportPath string
	// FailReason is nil unless the audit FAILED.
	FailReason *string
	Detail     []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuditDetail is the JSON shape stored in AuditRecord.Detail.
type AuditDetail struct {
	Categories    []scoring.CategoryResult `json:"categories"`
	Opportunities []scoring.Opportunity    `json:"opportunities"`
	Screenshots   audit.Screenshots        `json:"screenshots"`
	Notes         string                   `json:"notes,omitempty"`
}

// NewAuditRecord converts a finished audit into its persistence row.
func NewAuditRecord(res *audit.Result) (AuditRecord, error) {
	id, err := uuid.Parse(res.ID)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parse audit id %q: %w", res.ID, err)
	}

	rec := AuditRecord{
		ID:          id,
		URL:         res.URL,
		FinalURL:    res.FinalURL,
		CompanyName: res.CompanyName,
		State:       res.State,
		LoadTime:    res.LoadTime,
		Rendered:    res.Rendered,
		ReportPath:  res.ReportPath,
		CreatedAt:   res.Timestamp,
		UpdatedAt:   res.Timestamp,
	}
	if res.Scored() {
		rec.Score = res.TotalScore
		rec.Percentage = res.Percentage
		rec.Tier = res.Tier
		rec.Grade = res.Grade.Letter
	}
	if res.Err != nil {
		reason := res.Err.Reason()
		rec.FailReason = &reason
	}

	detail, err := json.Marshal(AuditDetail{
		Categories:    res.Categories,
		Opportunities: res.RankedOpportunities,
		Screenshots:   res.Screenshots,
		Notes:         res.Notes,
	})
	if err != nil {
		return AuditRecord{}, fmt.Errorf("marshal audit detail: %w", err)
	}
	rec.Detail = detail
	return rec, nil
}

// NewPendingRecord builds the intake row for an audit accepted over the API.
// The worker later overwrites it with the finished result under the same ID.
func NewPendingRecord(id uuid.UUID, req audit.Request, now time.Time) AuditRecord {
	return AuditRecord{
		ID:          id,
		URL:         req.URL,
		CompanyName: req.CompanyName,
		State:       audit.StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DecodeDetail unpacks the stored category breakdown.
func (r AuditRecord) DecodeDetail() (AuditDetail, error) {
	var d AuditDetail
	if len(r.Detail) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(r.Detail, &d); err != nil {
		return AuditDetail{}, fmt.Errorf("decode audit detail: %w", err)
	}
	return d, nil
}

// AuditRepository persists audit lifecycle and outcomes.
type AuditRepository interface {
	// SaveResult upserts an audit row. Intake writes the PENDING stub and
	// the worker replaces it with the finished result.
	SaveResult(ctx context.Context, rec AuditRecord) error
	// UpdateStatus records an in-flight state transition. failReason is
	// nil except for FAILED.
	UpdateStatus(ctx context.Context, id uuid.UUID, state audit.State, failReason *string, at time.Time) error
	// GetResult loads one audit or returns ErrNotFound.
	GetResult(ctx context.Context, id uuid.UUID) (AuditRecord, error)
	// ListRecent returns audits newest-first.
	ListRecent(ctx context.Context, limit, offset int) ([]AuditRecord, error)
}
