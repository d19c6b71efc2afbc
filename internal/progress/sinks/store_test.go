package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/progress"
	"github.com/leadfoundry/siteauditor/internal/store"
)

// TestStoreSinkPersistsBatch ensures tier deltas are collapsed per batch
// before persisting and that the final counters reach FinishRun.
func TestStoreSinkPersistsBatch(t *testing.T) {
	t.Parallel()

	repo := &fakeBatchRepo{}
	sink := NewStoreSink(repo, nil)
	batchUUID := uuid.New()
	batchID := progress.UUIDToBytes(batchUUID)
	now := time.Now()

	batch := []progress.Event{
		{BatchID: batchID, Stage: progress.StageBatchStart, TS: now, Total: 3, Note: "prospects.csv"},
		{
			BatchID: batchID,
			Stage:   progress.StageSiteDone,
			TS:      now.Add(5 * time.Second),
			Site:    "smithcpa.com",
			URL:     "https://smithcpa.com",
			State:   "DONE",
			Tier:    "STRONG YES",
			Score:   41.5,
			Dur:     5 * time.Second,
		},
		{
			BatchID: batchID,
			Stage:   progress.StageSiteDone,
			TS:      now.Add(9 * time.Second),
			Site:    "jonesaccounting.com",
			URL:     "https://jonesaccounting.com",
			State:   "DONE",
			Tier:    "STRONG YES",
			Score:   52.0,
			Dur:     4 * time.Second,
		},
		{
			BatchID: batchID,
			Stage:   progress.StageSiteFailed,
			TS:      now.Add(12 * time.Second),
			Site:    "deadfirm.com",
			URL:     "https://deadfirm.com",
			Dur:     3 * time.Second,
			Note:    "domain could not be resolved",
		},
		{BatchID: batchID, Stage: progress.StageBatchDone, TS: now.Add(13 * time.Second), Dur: 13 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, repo.starts, 1)
	require.Equal(t, batchUUID, repo.starts[0].ID)
	require.Equal(t, "prospects.csv", repo.starts[0].Source)
	require.Equal(t, int64(3), repo.starts[0].Total)

	require.Len(t, repo.sites, 3)
	require.Equal(t, "STRONG YES", repo.sites[0].Tier)
	require.Equal(t, "FAILED", repo.sites[2].State, "failed sites default to FAILED when no state was set")
	require.Equal(t, "domain could not be resolved", repo.sites[2].FailReason)

	require.Len(t, repo.tierDeltas, 1, "same-tier sites collapse into one delta")
	require.Equal(t, "STRONG YES", repo.tierDeltas[0].tier)
	require.Equal(t, int64(2), repo.tierDeltas[0].delta)
	require.Equal(t, now.Add(9*time.Second), repo.tierDeltas[0].at, "delta carries the latest event timestamp")

	require.Len(t, repo.finishes, 1)
	fin := repo.finishes[0]
	require.Equal(t, store.BatchSuccess, fin.status)
	require.Equal(t, int64(2), fin.completed)
	require.Equal(t, int64(1), fin.failed)
	require.Nil(t, fin.errMsg)
}

// TestStoreSinkMarksErroredRun maps a terminal note onto the error status.
func TestStoreSinkMarksErroredRun(t *testing.T) {
	t.Parallel()

	repo := &fakeBatchRepo{}
	sink := NewStoreSink(repo, nil)
	batchID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{BatchID: batchID, Stage: progress.StageBatchStart, TS: now, Total: 1},
		{BatchID: batchID, Stage: progress.StageBatchDone, TS: now.Add(time.Second), Note: "context canceled"},
	}))

	require.Len(t, repo.finishes, 1)
	fin := repo.finishes[0]
	require.Equal(t, store.BatchError, fin.status)
	require.NotNil(t, fin.errMsg)
	require.Equal(t, "context canceled", *fin.errMsg)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeBatchRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	batchID := progress.UUIDToBytes(uuid.New())
	err := sink.Consume(context.Background(), []progress.Event{
		{BatchID: batchID, Stage: progress.StageBatchStart, TS: time.Now(), Total: 1},
	})
	require.Error(t, err)
}

type fakeBatchRepo struct {
	fail       bool
	starts     []store.BatchRun
	finishes   []finishCall
	sites      []store.SiteOutcome
	tierDeltas []tierCall
}

type finishCall struct {
	batchID   uuid.UUID
	status    store.BatchStatus
	completed int64
	failed    int64
	errMsg    *string
}

type tierCall struct {
	batchID uuid.UUID
	tier    string
	delta   int64
	at      time.Time
}

func (f *fakeBatchRepo) StartRun(_ context.Context, run store.BatchRun) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, run)
	return nil
}

func (f *fakeBatchRepo) FinishRun(
	_ context.Context,
	batchID uuid.UUID,
	finishedAt time.Time,
	status store.BatchStatus,
	completed, failed int64,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("finish")
	}
	_ = finishedAt
	f.finishes = append(f.finishes, finishCall{
		batchID:   batchID,
		status:    status,
		completed: completed,
		failed:    failed,
		errMsg:    errMsg,
	})
	return nil
}

func (f *fakeBatchRepo) RecordSite(_ context.Context, outcome store.SiteOutcome) error {
	if f.fail {
		return assertErr("site")
	}
	f.sites = append(f.sites, outcome)
	return nil
}

func (f *fakeBatchRepo) UpsertTierCount(
	_ context.Context,
	batchID uuid.UUID,
	tier string,
	delta int64,
	at time.Time,
) error {
	if f.fail {
		return assertErr("tier")
	}
	f.tierDeltas = append(f.tierDeltas, tierCall{batchID: batchID, tier: tier, delta: delta, at: at})
	return nil
}

func (f *fakeBatchRepo) GetRun(context.Context, uuid.UUID) (store.BatchRun, error) {
	return store.BatchRun{}, assertErr("read")
}

func (f *fakeBatchRepo) TierCounts(context.Context, uuid.UUID) ([]store.TierCount, error) {
	return nil, assertErr("tiers")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
