// Package worker implements the audit execution loop: dequeue a job,
// run the audit, persist the result, and publish the completion event.
package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/publisher"
	"github.com/leadfoundry/siteauditor/internal/queue"
	"github.com/leadfoundry/siteauditor/internal/store"
	"github.com/leadfoundry/siteauditor/internal/telemetry"
)

// Auditor runs one audit end to end. *audit.Orchestrator satisfies it.
type Auditor interface {
	Audit(ctx context.Context, req audit.Request) *audit.Result
}

// Clock supplies timestamps for persisted transitions.
type Clock interface {
	Now() time.Time
}

// Config controls Worker behavior.
type Config struct {
	// Topic names the completion-event destination. Empty disables
	// publishing.
	Topic string
}

// Worker consumes queue jobs and executes the audit pipeline.
type Worker struct {
	queue   queue.Queue
	repo    store.AuditRepository
	auditor Auditor
	pub     publisher.Publisher
	clock   Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. The queue, repository, and auditor are
// required; publisher and clock may be nil.
func New(
	q queue.Queue,
	repo store.AuditRepository,
	auditor Auditor,
	pub publisher.Publisher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   q,
		repo:    repo,
		auditor: auditor,
		pub:     pub,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming jobs until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued audit job", zap.String("audit_id", job.ID.String()))
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.Job) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	log := w.logger.With(
		zap.String("audit_id", job.ID.String()),
		zap.String("url", job.Request.URL),
	)

	if err := w.repo.UpdateStatus(ctx, job.ID, audit.StateLoading, nil, w.now()); err != nil {
		// The audit still runs; the record catches up when the result lands.
		log.Warn("status update failed", zap.Error(err))
	}

	started := w.now()
	res := w.auditor.Audit(ctx, job.Request)
	// Result rows key on the intake ID so the pending record is updated
	// in place.
	res.ID = job.ID.String()
	took := w.now().Sub(started)

	w.observe(res, took)

	rec, err := store.NewAuditRecord(res)
	if err != nil {
		log.Error("encode audit record failed", zap.Error(err))
		reason := "internal error during audit"
		if uerr := w.repo.UpdateStatus(ctx, job.ID, audit.StateFailed, &reason, w.now()); uerr != nil {
			log.Error("failure status update failed", zap.Error(uerr))
		}
		return
	}
	if err := w.repo.SaveResult(ctx, rec); err != nil {
		log.Error("save audit result failed", zap.Error(err))
		return
	}

	w.publishCompletion(ctx, res, log)

	log.Info("audit job finished",
		zap.String("state", string(res.State)),
		zap.Float64("score", res.TotalScore),
		zap.String("tier", string(res.Tier)),
		zap.Duration("took", took),
	)
}

// observe records the worker-level metrics for one finished audit.
func (w *Worker) observe(res *audit.Result, took time.Duration) {
	telemetry.ObserveAudit(res.URL, strings.ToLower(string(res.State)), took)
	if res.Scored() {
		telemetry.ObserveScore(res.TotalScore, string(res.Tier))
	}
}

// publishCompletion emits the terminal event. Failures are logged, not
// fatal: the persisted record remains the source of truth.
func (w *Worker) publishCompletion(ctx context.Context, res *audit.Result, log *zap.Logger) {
	if w.cfg.Topic == "" || w.pub == nil {
		return
	}
	evt := publisher.NewCompletionEvent(res, w.now())
	if _, err := w.pub.Publish(ctx, w.cfg.Topic, evt); err != nil {
		log.Error("publish completion event failed", zap.Error(err))
		return
	}
	log.Debug("completion event published", zap.String("state", string(res.State)))
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}
