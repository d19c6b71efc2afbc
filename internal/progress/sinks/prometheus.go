package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leadfoundry/siteauditor/internal/progress"
)

// PrometheusSink exports batch progress metrics. It owns the collectors for
// batches started/completed/running plus per-tier site counters.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchesRunning   prometheus.Gauge
	batchRuntime     *prometheus.HistogramVec

	siteTiers    *prometheus.CounterVec
	siteFailures prometheus.Counter
	siteDuration prometheus.Histogram

	tracker *batchTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditor_batches_started_total",
			Help: "Total batch runs that have started.",
		}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_batches_completed_total",
			Help: "Total batch runs completed partitioned by result.",
		}, []string{"result"}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_batches_running",
			Help: "Current number of running batch runs.",
		}),
		batchRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditor_batch_runtime_seconds",
			Help:    "Wall time per completed batch run.",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"result"}),
		siteTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_batch_sites_total",
			Help: "Scored sites partitioned by recommendation tier.",
		}, []string{"tier"}),
		siteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditor_batch_site_failures_total",
			Help: "Sites whose audit failed to load.",
		}),
		siteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_batch_site_duration_seconds",
			Help:    "Wall time per site audit within a batch.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		tracker: newBatchTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.batchesStarted,
		s.batchesCompleted,
		s.batchesRunning,
		s.batchRuntime,
		s.siteTiers,
		s.siteFailures,
		s.siteDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBatchStart:
		s.batchesStarted.Inc()
		if s.tracker.start(evt.BatchID) {
			s.batchesRunning.Inc()
		}
	case progress.StageBatchDone:
		result := "success"
		if evt.Note != "" {
			result = "error"
		}
		s.batchesCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.batchRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.BatchID) {
			s.batchesRunning.Dec()
		}
	case progress.StageSiteDone:
		tier := evt.Tier
		if tier == "" {
			tier = "unknown"
		}
		s.siteTiers.WithLabelValues(tier).Inc()
		if evt.Dur > 0 {
			s.siteDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageSiteFailed:
		s.siteFailures.Inc()
		if evt.Dur > 0 {
			s.siteDuration.Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// batchTracker dedupes running-gauge transitions when start or done events
// are replayed.
type batchTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newBatchTracker() *batchTracker {
	return &batchTracker{running: make(map[[16]byte]struct{})}
}

func (t *batchTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *batchTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
