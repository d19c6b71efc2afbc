package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/publisher"
	"github.com/leadfoundry/siteauditor/internal/queue"
	"github.com/leadfoundry/siteauditor/internal/scoring"
	"github.com/leadfoundry/siteauditor/internal/store"
)

func TestWorker_ProcessJob_SuccessFlow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobID := uuid.New()
	q := &fakeQueue{jobs: []queue.Job{{
		ID:      jobID,
		Request: audit.Request{URL: "https://smithcpa.com", CompanyName: "Smith CPA"},
	}}}
	repo := newFakeRepo()
	pub := newFakePublisher()
	auditor := &fakeAuditor{result: scoredResult("https://smithcpa.com")}
	clock := &fakeClock{now: time.Unix(100, 0).UTC()}

	w := New(q, repo, auditor, pub, clock, Config{Topic: "audit-completions"}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return len(repo.saved()) == 1
	}, time.Second, 10*time.Millisecond)

	saved := repo.saved()[0]
	require.Equal(t, jobID, saved.ID, "result row keys on the intake ID")
	require.Equal(t, audit.StateDone, saved.State)
	require.Equal(t, 41.5, saved.Score)

	require.Equal(t, audit.StateLoading, repo.statuses()[0].state, "job is marked loading before the audit runs")

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	evt, ok := msgs[0].(publisher.CompletionEvent)
	require.True(t, ok, "payload should be a typed completion event")
	require.Equal(t, jobID.String(), evt.AuditID)
	require.Equal(t, "STRONG YES", evt.Tier)
	cancel()
}

func TestWorker_ProcessJob_PublishFailureKeepsResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &fakeQueue{jobs: []queue.Job{{
		ID:      uuid.New(),
		Request: audit.Request{URL: "https://smithcpa.com"},
	}}}
	repo := newFakeRepo()
	pub := newFakePublisher()
	pub.err = errors.New("broker unavailable")
	auditor := &fakeAuditor{result: scoredResult("https://smithcpa.com")}

	w := New(q, repo, auditor, pub, nil, Config{Topic: "audit-completions"}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return len(repo.saved()) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, audit.StateDone, repo.saved()[0].State, "a lost event never discards the result")
	require.Empty(t, pub.Messages())
	cancel()
}

func TestWorker_ProcessJob_FailedAuditPersisted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failed := &audit.Result{
		ID:    uuid.NewString(),
		URL:   "https://deadfirm.com",
		State: audit.StateFailed,
		Err:   &audit.LoadError{Kind: audit.LoadErrDNS, URL: "https://deadfirm.com"},
	}
	q := &fakeQueue{jobs: []queue.Job{{
		ID:      uuid.New(),
		Request: audit.Request{URL: "https://deadfirm.com"},
	}}}
	repo := newFakeRepo()
	pub := newFakePublisher()

	w := New(q, repo, &fakeAuditor{result: failed}, pub, nil, Config{Topic: "audit-completions"}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return len(repo.saved()) == 1
	}, time.Second, 10*time.Millisecond)

	saved := repo.saved()[0]
	require.Equal(t, audit.StateFailed, saved.State)
	require.NotNil(t, saved.FailReason)
	require.Equal(t, "domain could not be resolved", *saved.FailReason)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	evt := msgs[0].(publisher.CompletionEvent)
	require.Equal(t, "FAILED", evt.State)
	require.Equal(t, "domain could not be resolved", evt.FailReason)
	cancel()
}

func TestWorkerRunStopsOnQueueClose(t *testing.T) {
	t.Parallel()

	q := memoryLikeQueue()
	w := New(q, newFakeRepo(), &fakeAuditor{result: scoredResult("https://smithcpa.com")}, nil, nil, Config{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

// scoredResult is a minimal DONE result for one site.
func scoredResult(url string) *audit.Result {
	return &audit.Result{
		ID:          uuid.NewString(),
		URL:         url,
		FinalURL:    url,
		CompanyName: "Smith CPA",
		State:       audit.StateDone,
		TotalScore:  41.5,
		Percentage:  41.5,
		Tier:        scoring.TierStrongYes,
		Grade:       scoring.Grade{Letter: "F", Summary: "failing"},
		Timestamp:   time.Now().UTC(),
	}
}

// --- fakes ---

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return queue.Job{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (q *fakeQueue) Close() {}

// closableQueue wraps a channel so close semantics match the real queue.
type closableQueue struct {
	ch chan queue.Job
}

func memoryLikeQueue() *closableQueue {
	return &closableQueue{ch: make(chan queue.Job, 1)}
}

func (q *closableQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.ch <- job
	return nil
}

func (q *closableQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	select {
	case <-ctx.Done():
		return queue.Job{}, ctx.Err()
	case job, ok := <-q.ch:
		if !ok {
			return queue.Job{}, queue.ErrClosed
		}
		return job, nil
	}
}

func (q *closableQueue) Close() { close(q.ch) }

type fakeAuditor struct {
	mu     sync.Mutex
	result *audit.Result
	calls  int
}

func (a *fakeAuditor) Audit(_ context.Context, _ audit.Request) *audit.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	cp := *a.result
	return &cp
}

type statusCall struct {
	id         uuid.UUID
	state      audit.State
	failReason *string
}

type fakeRepo struct {
	mu      sync.Mutex
	records []store.AuditRecord
	updates []statusCall
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{}
}

func (f *fakeRepo) SaveResult(_ context.Context, rec store.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, state audit.State, failReason *string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusCall{id: id, state: state, failReason: failReason})
	return nil
}

func (f *fakeRepo) GetResult(context.Context, uuid.UUID) (store.AuditRecord, error) {
	return store.AuditRecord{}, store.ErrNotFound
}

func (f *fakeRepo) ListRecent(context.Context, int, int) ([]store.AuditRecord, error) {
	return nil, nil
}

func (f *fakeRepo) saved() []store.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.AuditRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *fakeRepo) statuses() []statusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statusCall, len(f.updates))
	copy(out, f.updates)
	return out
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []any
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.payloads = append(p.payloads, payload)
	return "msgid", nil
}

func (p *fakePublisher) Messages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.payloads))
	copy(out, p.payloads)
	return out
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
