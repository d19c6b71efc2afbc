package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/siteauditor/internal/store"
)

func TestBatchRepositoryLifecycle(t *testing.T) {
	t.Parallel()

	repo := NewBatchRepository()
	ctx := context.Background()
	batchID := uuid.New()
	started := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	if _, err := repo.GetRun(ctx, batchID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetRun() on empty repo error = %v, want ErrNotFound", err)
	}
	if err := repo.FinishRun(ctx, batchID, started, store.BatchSuccess, 0, 0, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FinishRun() without run error = %v, want ErrNotFound", err)
	}

	err := repo.StartRun(ctx, store.BatchRun{
		ID:        batchID,
		Source:    "prospects.csv",
		StartedAt: started,
		Total:     3,
	})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	run, err := repo.GetRun(ctx, batchID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != store.BatchRunning {
		t.Fatalf("Status = %q, want running", run.Status)
	}

	if err := repo.RecordSite(ctx, store.SiteOutcome{
		BatchID: batchID,
		Site:    "smithcpa.com",
		Tier:    "STRONG YES",
		Score:   41.5,
		State:   "DONE",
	}); err != nil {
		t.Fatalf("RecordSite() error = %v", err)
	}
	if err := repo.UpsertTierCount(ctx, batchID, "STRONG YES", 1, started.Add(time.Minute)); err != nil {
		t.Fatalf("UpsertTierCount() error = %v", err)
	}
	if err := repo.UpsertTierCount(ctx, batchID, "STRONG YES", 1, started.Add(2*time.Minute)); err != nil {
		t.Fatalf("UpsertTierCount() second delta error = %v", err)
	}
	if err := repo.UpsertTierCount(ctx, batchID, "NO", 1, started.Add(3*time.Minute)); err != nil {
		t.Fatalf("UpsertTierCount() NO tier error = %v", err)
	}

	finished := started.Add(10 * time.Minute)
	if err := repo.FinishRun(ctx, batchID, finished, store.BatchSuccess, 2, 1, nil); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	run, _ = repo.GetRun(ctx, batchID)
	if run.Status != store.BatchSuccess {
		t.Fatalf("Status = %q, want success", run.Status)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(finished) {
		t.Fatalf("FinishedAt = %v, want %v", run.FinishedAt, finished)
	}
	if run.Completed != 2 || run.Failed != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", run.Completed, run.Failed)
	}

	counts, err := repo.TierCounts(ctx, batchID)
	if err != nil {
		t.Fatalf("TierCounts() error = %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("len(counts) = %d, want 2", len(counts))
	}
	// Sorted by tier name: NO before STRONG YES.
	if counts[0].Tier != "NO" || counts[0].Count != 1 {
		t.Fatalf("counts[0] = %+v, want NO/1", counts[0])
	}
	if counts[1].Tier != "STRONG YES" || counts[1].Count != 2 {
		t.Fatalf("counts[1] = %+v, want STRONG YES/2", counts[1])
	}

	sites := repo.Sites(batchID)
	if len(sites) != 1 || sites[0].Site != "smithcpa.com" {
		t.Fatalf("Sites() = %+v, want one smithcpa.com row", sites)
	}
}

func TestBatchRepositoryErroredRun(t *testing.T) {
	t.Parallel()

	repo := NewBatchRepository()
	ctx := context.Background()
	batchID := uuid.New()
	started := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	if err := repo.StartRun(ctx, store.BatchRun{ID: batchID, Source: "prospects.csv", StartedAt: started}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	msg := "context canceled"
	if err := repo.FinishRun(ctx, batchID, started.Add(time.Minute), store.BatchError, 1, 4, &msg); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	run, err := repo.GetRun(ctx, batchID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != store.BatchError {
		t.Fatalf("Status = %q, want error", run.Status)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != msg {
		t.Fatalf("ErrorMessage = %v, want %q", run.ErrorMessage, msg)
	}

	// Mutating the returned copy must not touch the stored run.
	*run.ErrorMessage = "changed"
	again, _ := repo.GetRun(ctx, batchID)
	if *again.ErrorMessage != msg {
		t.Fatalf("stored ErrorMessage mutated to %q", *again.ErrorMessage)
	}
}
