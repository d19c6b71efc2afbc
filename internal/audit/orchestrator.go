package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/artifact"
	"github.com/leadfoundry/siteauditor/internal/extract"
	"github.com/leadfoundry/siteauditor/internal/scoring"
	"github.com/leadfoundry/siteauditor/internal/signals"
	"github.com/leadfoundry/siteauditor/internal/storage"
)

const defaultJudgeTimeout = 30 * time.Second

// Orchestrator drives one audit from URL to scored result.
type Orchestrator struct {
	loader  PageLoader
	judge   VisionJudge
	shots   storage.BlobStore
	reports ReportSink

	log          *zap.Logger
	judgeTimeout time.Duration
	now          func() time.Time
	newID        func() string
	onState      func(id string, state State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScreenshotStore persists captured screenshots to the given store.
func WithScreenshotStore(bs storage.BlobStore) Option {
	return func(o *Orchestrator) { o.shots = bs }
}

// WithReportSink writes a per-site report for every scored result.
func WithReportSink(rs ReportSink) Option {
	return func(o *Orchestrator) { o.reports = rs }
}

// WithJudgeTimeout bounds how long a visual judgment may take before the
// audit proceeds without it.
func WithJudgeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.judgeTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDFunc overrides result ID generation.
func WithIDFunc(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithStateObserver is invoked on every state transition, including the
// terminal one. Observers must not block.
func WithStateObserver(fn func(id string, state State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// New builds an Orchestrator. The loader is required; a nil judge means
// every audit scores visual design as unavailable.
func New(loader PageLoader, judge VisionJudge, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		loader:       loader,
		judge:        judge,
		log:          log,
		judgeTimeout: defaultJudgeTimeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Audit runs the full pipeline for one site. It always returns a result:
// load failures come back as State FAILED with Err set, degraded signal
// coverage as PARTIAL, and full coverage as DONE.
func (o *Orchestrator) Audit(ctx context.Context, req Request) *Result {
	res := &Result{
		ID:          o.newID(),
		URL:         strings.TrimSpace(req.URL),
		CompanyName: strings.TrimSpace(req.CompanyName),
		Notes:       strings.TrimSpace(req.Notes),
		Timestamp:   o.now().UTC(),
	}
	o.setState(res, StatePending)

	normalized, lerr := NormalizeURL(req.URL)
	if lerr != nil {
		o.log.Warn("rejected audit URL", zap.String("url", req.URL), zap.Error(lerr))
		return o.fail(res, lerr)
	}
	res.URL = normalized
	if res.CompanyName == "" {
		res.CompanyName = strings.TrimPrefix(HostOf(normalized), "www.")
	}

	log := o.log.With(zap.String("audit_id", res.ID), zap.String("url", res.URL))
	log.Info("audit started", zap.String("company", res.CompanyName))

	o.setState(res, StateLoading)
	capture, err := o.loader.Load(ctx, res.URL)
	if err != nil {
		lerr := AsLoadError(res.URL, err)
		log.Warn("page load failed",
			zap.String("kind", string(lerr.Kind)),
			zap.Int("status", lerr.Status),
			zap.Error(err))
		return o.fail(res, lerr)
	}
	res.FinalURL = capture.FinalURL
	if res.FinalURL == "" {
		res.FinalURL = res.URL
	}
	res.LoadTime = capture.LoadTime
	res.Rendered = capture.Rendered

	o.setState(res, StateExtracting)
	sigs := o.extractSignals(res, capture, log)
	sigs.Design = o.judgeDesign(ctx, capture, log)

	o.persistScreenshots(ctx, res, capture, log)

	o.setState(res, StateScoring)
	results := scoring.ScoreAll(sigs)
	summary, err := scoring.Aggregate(results[:])
	if err != nil {
		// Only reachable on a scorer bug; keep the signals for triage.
		log.Error("score aggregation failed", zap.Error(err))
		res.Signals = &sigs
		o.setState(res, StatePartial)
		return res
	}
	res.Categories = results[:]
	res.TotalScore = summary.TotalScore
	res.Percentage = summary.Percentage
	res.Tier = summary.Tier
	res.Grade = summary.Grade
	res.RankedOpportunities = summary.RankedOpportunities
	res.Signals = &sigs

	final := StateDone
	if !coverageComplete(sigs) {
		final = StatePartial
	}
	o.setState(res, final)

	o.writeReport(ctx, res, log)

	log.Info("audit finished",
		zap.String("state", string(res.State)),
		zap.Float64("score", res.TotalScore),
		zap.String("tier", string(res.Tier)),
		zap.Duration("load_time", res.LoadTime))
	return res
}

func (o *Orchestrator) setState(res *Result, s State) {
	res.State = s
	if o.onState != nil {
		o.onState(res.ID, s)
	}
}

func (o *Orchestrator) fail(res *Result, lerr *LoadError) *Result {
	res.Err = lerr
	o.setState(res, StateFailed)
	return res
}

// extractSignals parses the captured markup into site signals. A shell
// capture keeps the head-derived signals and marks everything that needs
// a rendered body as absent.
func (o *Orchestrator) extractSignals(res *Result, capture *PageCapture, log *zap.Logger) signals.SiteSignals {
	sigs := signals.SiteSignals{
		URL:      res.URL,
		FinalURL: res.FinalURL,
		LoadTime: signals.Present(capture.LoadTime),
	}

	facts, err := extract.Markup(capture.RawHTML)
	if err != nil {
		log.Warn("markup extraction failed", zap.Error(err))
		markMarkupAbsent(&sigs, "page markup could not be parsed")
		if capture.Title != "" {
			sigs.Title = signals.Present(capture.Title)
		}
		return sigs
	}

	title := facts.Title
	if title == "" {
		title = capture.Title
	}
	sigs.Title = signals.Present(title)
	sigs.MetaDescription = signals.Present(facts.MetaDescription)
	sigs.ViewportMeta = signals.Present(facts.HasViewportMeta)

	if capture.JSShell {
		const reason = "static snapshot appears to be a JavaScript application shell"
		log.Info("static capture looks like an app shell, body signals degraded")
		sigs.H1Count = signals.Absent[int](reason)
		sigs.CTA = signals.Absent[bool](reason)
		sigs.ContactForm = signals.Absent[bool](reason)
		sigs.Phone = signals.Absent[bool](reason)
		sigs.TelLink = signals.Absent[bool](reason)
		sigs.Team = signals.Absent[bool](reason)
		sigs.Credentials = signals.Absent[bool](reason)
		sigs.MapsEmbed = signals.Absent[bool](reason)
		sigs.FooterNAP = signals.Absent[bool](reason)
		return sigs
	}

	sigs.H1Count = signals.Present(facts.H1Count)
	sigs.CTA = signals.Present(facts.HasCTA)
	sigs.ContactForm = signals.Present(facts.HasContactForm)
	sigs.Phone = signals.Present(facts.HasPhone)
	sigs.TelLink = signals.Present(facts.HasTelLink)
	sigs.Team = signals.Present(facts.HasTeam)
	sigs.Credentials = signals.Present(facts.HasCredentials)
	sigs.MapsEmbed = signals.Present(facts.HasMapsEmbed)
	sigs.FooterNAP = signals.Present(facts.FooterNAP)
	return sigs
}

func markMarkupAbsent(sigs *signals.SiteSignals, reason string) {
	sigs.Title = signals.Absent[string](reason)
	sigs.MetaDescription = signals.Absent[string](reason)
	sigs.H1Count = signals.Absent[int](reason)
	sigs.CTA = signals.Absent[bool](reason)
	sigs.ContactForm = signals.Absent[bool](reason)
	sigs.Phone = signals.Absent[bool](reason)
	sigs.TelLink = signals.Absent[bool](reason)
	sigs.Team = signals.Absent[bool](reason)
	sigs.Credentials = signals.Absent[bool](reason)
	sigs.MapsEmbed = signals.Absent[bool](reason)
	sigs.FooterNAP = signals.Absent[bool](reason)
	sigs.ViewportMeta = signals.Absent[bool](reason)
}

// judgeDesign obtains the visual rating under its own timeout so a slow
// judgment never stalls the audit past its budget.
func (o *Orchestrator) judgeDesign(ctx context.Context, capture *PageCapture, log *zap.Logger) signals.Judgment {
	if o.judge == nil {
		return signals.Unavailable("visual judgment disabled")
	}
	if len(capture.DesktopShot) == 0 {
		return signals.Unavailable("no screenshot captured")
	}

	jctx, cancel := context.WithTimeout(ctx, o.judgeTimeout)
	defer cancel()

	judgment, err := o.judge.Judge(jctx, capture.DesktopShot)
	if err != nil {
		log.Warn("visual judgment failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return signals.Errored("visual judgment timed out")
		}
		return signals.Errored("visual judgment request failed")
	}
	return judgment
}

// persistScreenshots stores whatever was captured. Failures are logged
// and the audit continues; the scores do not depend on stored images.
func (o *Orchestrator) persistScreenshots(ctx context.Context, res *Result, capture *PageCapture, log *zap.Logger) {
	if o.shots == nil {
		return
	}
	if len(capture.DesktopShot) > 0 {
		key := artifact.ScreenshotKey(res.URL, "desktop")
		uri, err := o.shots.PutObject(ctx, key, "image/png", bytes.NewReader(capture.DesktopShot))
		if err != nil {
			log.Warn("desktop screenshot save failed", zap.String("key", key), zap.Error(err))
		} else {
			res.Screenshots.Desktop = uri
		}
	}
	if len(capture.MobileShot) > 0 {
		key := artifact.ScreenshotKey(res.URL, "mobile")
		uri, err := o.shots.PutObject(ctx, key, "image/png", bytes.NewReader(capture.MobileShot))
		if err != nil {
			log.Warn("mobile screenshot save failed", zap.String("key", key), zap.Error(err))
		} else {
			res.Screenshots.Mobile = uri
		}
	}
}

func (o *Orchestrator) writeReport(ctx context.Context, res *Result, log *zap.Logger) {
	if o.reports == nil {
		return
	}
	path, err := o.reports.SaveReport(ctx, res)
	if err != nil {
		log.Warn("report save failed", zap.Error(err))
		return
	}
	res.ReportPath = path
}

// coverageComplete reports whether every signal was actually measured,
// which is what separates DONE from PARTIAL.
func coverageComplete(s signals.SiteSignals) bool {
	if s.Design.State != signals.JudgmentJudged {
		return false
	}
	present := []bool{
		isPresent(s.Title),
		isPresent(s.MetaDescription),
		isPresent(s.H1Count),
		isPresent(s.CTA),
		isPresent(s.ContactForm),
		isPresent(s.Phone),
		isPresent(s.TelLink),
		isPresent(s.Team),
		isPresent(s.Credentials),
		isPresent(s.MapsEmbed),
		isPresent(s.FooterNAP),
		isPresent(s.ViewportMeta),
		isPresent(s.LoadTime),
	}
	for _, p := range present {
		if !p {
			return false
		}
	}
	return true
}

func isPresent[T any](s signals.Signal[T]) bool {
	_, ok := s.Value()
	return ok
}
