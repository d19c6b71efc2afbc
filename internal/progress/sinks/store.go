package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/progress"
	"github.com/leadfoundry/siteauditor/internal/store"
)

// StoreSink persists batch progress via a store.BatchRepository. Per-site
// rows are written as they arrive; tier-count deltas are collapsed per
// batch flush to reduce write amplification.
type StoreSink struct {
	repo   store.BatchRepository
	logger *zap.Logger

	mu      sync.Mutex
	tallies map[uuid.UUID]*batchTally
}

// batchTally accumulates the completed/failed counters FinishRun needs.
// It lives for the duration of one batch in this process.
type batchTally struct {
	completed int64
	failed    int64
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.BatchRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{
		repo:    repo,
		logger:  logger,
		tallies: make(map[uuid.UUID]*batchTally),
	}
}

// Consume forwards batch milestones to the repository and flushes collapsed
// tier deltas. Repository errors abort the flush and are returned verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	tiers := make(map[tierKey]*tierDelta)

	for _, evt := range batch {
		batchID := evt.BatchUUID()
		switch evt.Stage {
		case progress.StageBatchStart:
			if err := s.repo.StartRun(ctx, store.BatchRun{
				ID:        batchID,
				Source:    evt.Note,
				StartedAt: evt.TS,
				Total:     evt.Total,
			}); err != nil {
				return fmt.Errorf("start batch run: %w", err)
			}
		case progress.StageSiteDone:
			if err := s.recordSite(ctx, batchID, evt, ""); err != nil {
				return err
			}
			s.bump(batchID, false)
			collectTier(tiers, batchID, evt)
		case progress.StageSiteFailed:
			if err := s.recordSite(ctx, batchID, evt, evt.Note); err != nil {
				return err
			}
			s.bump(batchID, true)
		case progress.StageBatchDone:
			if err := s.finishRun(ctx, batchID, evt); err != nil {
				return err
			}
		}
	}

	for key, delta := range tiers {
		if delta.count == 0 {
			continue
		}
		if err := s.repo.UpsertTierCount(ctx, key.batchID, key.tier, delta.count, delta.at); err != nil {
			return fmt.Errorf("upsert tier count: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) recordSite(ctx context.Context, batchID uuid.UUID, evt progress.Event, failReason string) error {
	state := evt.State
	if state == "" && failReason != "" {
		state = "FAILED"
	}
	err := s.repo.RecordSite(ctx, store.SiteOutcome{
		BatchID:    batchID,
		Site:       evt.Site,
		URL:        evt.URL,
		Tier:       evt.Tier,
		Score:      evt.Score,
		State:      state,
		FailReason: failReason,
		Duration:   evt.Dur,
		FinishedAt: evt.TS,
	})
	if err != nil {
		return fmt.Errorf("record batch site: %w", err)
	}
	return nil
}

func (s *StoreSink) finishRun(ctx context.Context, batchID uuid.UUID, evt progress.Event) error {
	completed, failed := s.takeTally(batchID)
	status := store.BatchSuccess
	var errMsg *string
	if evt.Note != "" {
		status = store.BatchError
		note := evt.Note
		errMsg = &note
	}
	if err := s.repo.FinishRun(ctx, batchID, evt.TS, status, completed, failed, errMsg); err != nil {
		return fmt.Errorf("finish batch run: %w", err)
	}
	return nil
}

func (s *StoreSink) bump(batchID uuid.UUID, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally := s.tallies[batchID]
	if tally == nil {
		tally = &batchTally{}
		s.tallies[batchID] = tally
	}
	if failed {
		tally.failed++
	} else {
		tally.completed++
	}
}

func (s *StoreSink) takeTally(batchID uuid.UUID) (completed, failed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tally := s.tallies[batchID]
	if tally == nil {
		return 0, 0
	}
	delete(s.tallies, batchID)
	return tally.completed, tally.failed
}

func collectTier(tiers map[tierKey]*tierDelta, batchID uuid.UUID, evt progress.Event) {
	if evt.Tier == "" {
		return
	}
	key := tierKey{batchID: batchID, tier: evt.Tier}
	delta := tiers[key]
	if delta == nil {
		delta = &tierDelta{}
		tiers[key] = delta
	}
	delta.count++
	if evt.TS.After(delta.at) {
		delta.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type tierKey struct {
	batchID uuid.UUID
	tier    string
}

type tierDelta struct {
	count int64
	at    time.Time
}
