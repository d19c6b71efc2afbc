// Package progress defines the event stream emitted while a batch of
// audits runs, and the hub that fans events out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageSiteStart  Stage = "SITE_START"
	StageSiteDone   Stage = "SITE_DONE"
	StageSiteFailed Stage = "SITE_FAILED"
	StageBatchDone  Stage = "BATCH_DONE"
)

// Event captures a single milestone of batch progress.
type Event struct {
	// BatchID identifies the batch run using the 16-byte UUID form.
	BatchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Seq orders events within one batch run.
	Seq uint64
	// Site is the company label for site-scoped events.
	Site string
	// URL is the audited URL for site-scoped events.
	URL string
	// State is the terminal audit state for SITE_DONE and SITE_FAILED.
	State string
	// Tier is the outreach tier for scored sites.
	Tier string
	// Score is the total audit score for scored sites.
	Score float64
	// Total is the number of sites admitted into the run; set on
	// BATCH_START.
	Total int64
	// Dur captures how long the site audit or the whole batch took.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == [16]byte{} {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone:
	case StageSiteStart:
		if e.URL == "" {
			return errors.New("site start requires url")
		}
	case StageSiteDone:
		if e.URL == "" {
			return errors.New("site done requires url")
		}
		if e.State == "" {
			return errors.New("site done requires state")
		}
	case StageSiteFailed:
		if e.URL == "" {
			return errors.New("site failed requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Score < 0 || e.Score > 100 {
		return errors.New("score must be within [0, 100]")
	}
	if e.Total < 0 {
		return errors.New("total must be >= 0")
	}
	return nil
}

// BatchUUID converts the binary batch ID to uuid.UUID for repositories.
func (e Event) BatchUUID() uuid.UUID {
	return uuid.UUID(e.BatchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
