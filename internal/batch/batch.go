// Package batch audits many sites concurrently with a bounded worker
// pool. One bad site never takes down the run: every input URL gets a
// result, in input order, whether it scored or failed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/progress"
	"github.com/leadfoundry/siteauditor/internal/scoring"
)

const (
	defaultConcurrency = 3
	defaultSiteTimeout = 2 * time.Minute
)

// Auditor runs one site audit. The audit orchestrator satisfies it.
type Auditor interface {
	Audit(ctx context.Context, req audit.Request) *audit.Result
}

// Config bounds a batch run.
type Config struct {
	// Concurrency is the number of sites audited at once.
	Concurrency int
	// SiteTimeout bounds each individual audit. In-flight audits get
	// this long to finish even when the batch context is canceled.
	SiteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.SiteTimeout <= 0 {
		c.SiteTimeout = defaultSiteTimeout
	}
	return c
}

// Result summarizes one batch run. Results holds one entry per input
// request, in input order.
type Result struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	Results    []*audit.Result
	Completed  int
	Failed     int
	TierCounts map[scoring.Tier]int
}

// Tally is a point-in-time view of a run's progress.
type Tally struct {
	Completed  int
	Failed     int
	TierCounts map[scoring.Tier]int
}

// Runner fans a list of audit requests out over a worker pool. A Runner
// tracks one run at a time.
type Runner struct {
	auditor Auditor
	cfg     Config
	log     *zap.Logger

	now      func() time.Time
	newID    func() uuid.UUID
	emitter  progress.Emitter
	onResult func(idx int, res *audit.Result)
	source   string

	seq atomic.Uint64

	mu    sync.Mutex
	tally Tally
}

// Option configures a Runner.
type Option func(*Runner)

// WithEmitter publishes progress events as the batch advances.
func WithEmitter(e progress.Emitter) Option {
	return func(r *Runner) { r.emitter = e }
}

// WithSource labels where the batch came from, usually the prospects
// file. Sinks persist it as the run's source.
func WithSource(label string) Option {
	return func(r *Runner) { r.source = label }
}

// WithOnResult invokes fn as each site finishes. It is called from
// worker goroutines and must be safe for concurrent use.
func WithOnResult(fn func(idx int, res *audit.Result)) Option {
	return func(r *Runner) { r.onResult = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDFunc overrides batch ID generation.
func WithIDFunc(fn func() uuid.UUID) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRunner builds a Runner around the given auditor.
func NewRunner(auditor Auditor, cfg Config, log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		auditor: auditor,
		cfg:     cfg.withDefaults(),
		log:     log,
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run audits every request and blocks until all of them have a result.
// Canceling the context stops new sites from starting; sites already in
// flight run to their per-site timeout, and everything never started is
// marked failed as canceled.
func (r *Runner) Run(ctx context.Context, reqs []audit.Request) *Result {
	batchID := r.newID()
	res := &Result{
		ID:        batchID.String(),
		StartedAt: r.now().UTC(),
		Results:   make([]*audit.Result, len(reqs)),
	}
	r.mu.Lock()
	r.tally = Tally{TierCounts: make(map[scoring.Tier]int)}
	r.mu.Unlock()

	log := r.log.With(zap.String("batch_id", res.ID), zap.Int("sites", len(reqs)))
	log.Info("batch started", zap.Int("concurrency", r.cfg.Concurrency))
	r.emit(progress.Event{
		BatchID: progress.UUIDToBytes(batchID),
		Stage:   progress.StageBatchStart,
		Total:   int64(len(reqs)),
		Note:    r.source,
	})

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res.Results[idx] = r.runOne(ctx, batchID, reqs[idx])
				r.record(res.Results[idx])
				if r.onResult != nil {
					r.onResult(idx, res.Results[idx])
				}
			}
		}()
	}

	submitted := 0
submit:
	for i := range reqs {
		select {
		case jobs <- i:
			submitted++
		case <-ctx.Done():
			log.Warn("batch canceled, draining in-flight audits",
				zap.Int("submitted", submitted),
				zap.Int("remaining", len(reqs)-submitted))
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	for i := submitted; i < len(reqs); i++ {
		res.Results[i] = r.canceledResult(batchID, reqs[i])
		r.record(res.Results[i])
		if r.onResult != nil {
			r.onResult(i, res.Results[i])
		}
	}

	final := r.Snapshot()
	res.Completed = final.Completed
	res.Failed = final.Failed
	res.TierCounts = final.TierCounts
	res.FinishedAt = r.now().UTC()

	// A non-empty note on BATCH_DONE marks the run as errored in every
	// sink, so it carries text only when the batch was cut short.
	var doneNote string
	if submitted < len(reqs) {
		doneNote = fmt.Sprintf("batch canceled with %s unstarted", pluralSites(len(reqs)-submitted))
	}
	r.emit(progress.Event{
		BatchID: progress.UUIDToBytes(batchID),
		Stage:   progress.StageBatchDone,
		Dur:     res.FinishedAt.Sub(res.StartedAt),
		Note:    doneNote,
	})
	log.Info("batch finished",
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))
	return res
}

// record folds one finished site into the live tally. Sites are counted
// before the OnResult observer runs, so an observer polling Snapshot
// always sees its own site included.
func (r *Runner) record(res *audit.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.Scored() {
		r.tally.Completed++
		r.tally.TierCounts[res.Tier]++
	} else {
		r.tally.Failed++
	}
}

// Snapshot returns the tally of the run in flight. It is safe to call
// from any goroutine while Run is blocked; counts grow as sites finish.
func (r *Runner) Snapshot() Tally {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[scoring.Tier]int, len(r.tally.TierCounts))
	for tier, n := range r.tally.TierCounts {
		counts[tier] = n
	}
	return Tally{
		Completed:  r.tally.Completed,
		Failed:     r.tally.Failed,
		TierCounts: counts,
	}
}

// runOne audits a single site, converting panics into failed results so
// the rest of the batch keeps going.
func (r *Runner) runOne(ctx context.Context, batchID uuid.UUID, req audit.Request) (result *audit.Result) {
	start := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("audit panicked",
				zap.String("url", req.URL),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			result = r.failedResult(req, &audit.LoadError{
				Kind: audit.LoadErrInternal,
				URL:  req.URL,
				Err:  errorFromPanic(rec),
			})
			r.emitSiteResult(batchID, req, result, r.now().Sub(start))
		}
	}()

	r.emit(progress.Event{
		BatchID: progress.UUIDToBytes(batchID),
		Stage:   progress.StageSiteStart,
		Site:    req.CompanyName,
		URL:     req.URL,
	})

	// Detach from batch cancellation so an in-flight audit drains
	// cleanly; the per-site timeout still bounds it.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SiteTimeout)
	defer cancel()

	result = r.auditor.Audit(actx, req)
	r.emitSiteResult(batchID, req, result, r.now().Sub(start))
	return result
}

func (r *Runner) emitSiteResult(batchID uuid.UUID, req audit.Request, res *audit.Result, elapsed time.Duration) {
	evt := progress.Event{
		BatchID: progress.UUIDToBytes(batchID),
		Site:    req.CompanyName,
		URL:     req.URL,
		State:   string(res.State),
		Dur:     elapsed,
	}
	if res.Scored() {
		evt.Stage = progress.StageSiteDone
		evt.Tier = string(res.Tier)
		evt.Score = res.TotalScore
	} else {
		evt.Stage = progress.StageSiteFailed
		if res.Err != nil {
			evt.Note = res.Err.Reason()
		}
	}
	r.emit(evt)
}

func (r *Runner) canceledResult(batchID uuid.UUID, req audit.Request) *audit.Result {
	res := r.failedResult(req, &audit.LoadError{
		Kind: audit.LoadErrCanceled,
		URL:  req.URL,
		Err:  errors.New("batch canceled before audit started"),
	})
	r.emitSiteResult(batchID, req, res, 0)
	return res
}

func (r *Runner) failedResult(req audit.Request, lerr *audit.LoadError) *audit.Result {
	return &audit.Result{
		ID:          uuid.NewString(),
		URL:         strings.TrimSpace(req.URL),
		CompanyName: strings.TrimSpace(req.CompanyName),
		Notes:       strings.TrimSpace(req.Notes),
		Timestamp:   r.now().UTC(),
		State:       audit.StateFailed,
		Err:         lerr,
	}
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter == nil {
		return
	}
	evt.Seq = r.seq.Add(1)
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.emitter.Emit(evt)
}

func errorFromPanic(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return errors.New("panic during audit")
}

func pluralSites(n int) string {
	if n == 1 {
		return "1 site"
	}
	return fmt.Sprintf("%d sites", n)
}
