// Package audit runs the end-to-end audit of a single website: load the
// page, extract signals, judge the visual design, score every category,
// and assemble the result with its ranked opportunities.
package audit

import (
	"context"
	"time"

	"github.com/leadfoundry/siteauditor/internal/scoring"
	"github.com/leadfoundry/siteauditor/internal/signals"
)

// State tracks an audit through its lifecycle. DONE, PARTIAL, and FAILED
// are terminal.
type State string

const (
	StatePending    State = "PENDING"
	StateLoading    State = "LOADING"
	StateExtracting State = "EXTRACTING"
	StateScoring    State = "SCORING"
	StateDone       State = "DONE"
	StatePartial    State = "PARTIAL"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transitions follow this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StatePartial || s == StateFailed
}

// Request identifies one site to audit. CompanyName and Notes are
// optional; they usually come from a prospect list.
type Request struct {
	URL         string
	CompanyName string
	Notes       string
}

// Screenshots holds the stored locations of the captured page images.
// Empty fields mean the capture or the save did not happen.
type Screenshots struct {
	Desktop string
	Mobile  string
}

// Result is the complete outcome of one audit.
//
// A DONE result scored every category from full signal coverage. PARTIAL
// means the site was scored but some signals could not be measured, so
// the total is a floor rather than an exact grade. FAILED means the page
// never loaded; Err says why and no scores are present.
type Result struct {
	ID          string
	URL         string
	FinalURL    string
	CompanyName string
	Notes       string
	Timestamp   time.Time
	State       State

	Categories          []scoring.CategoryResult
	TotalScore          float64
	Percentage          float64
	Tier                scoring.Tier
	Grade               scoring.Grade
	RankedOpportunities []scoring.Opportunity

	LoadTime time.Duration
	Rendered bool
	Signals  *signals.SiteSignals

	Screenshots Screenshots
	ReportPath  string

	Err *LoadError
}

// Scored reports whether the result carries category scores.
func (r *Result) Scored() bool {
	return r.State == StateDone || r.State == StatePartial
}

// CategoryPoints returns the points earned in the named category, or 0
// when the category is missing.
func (r *Result) CategoryPoints(c scoring.Category) float64 {
	for _, cr := range r.Categories {
		if cr.Category == c {
			return cr.PointsEarned
		}
	}
	return 0
}

// PageCapture is everything a loader observed for one page.
type PageCapture struct {
	RawHTML    string
	Title      string
	FinalURL   string
	StatusCode int
	LoadTime   time.Duration

	DesktopShot []byte
	MobileShot  []byte

	// Rendered is true when a real browser executed the page. JSShell
	// flags a static capture whose markup looks like the empty shell of
	// a JavaScript application, so body-derived signals are unreliable.
	Rendered bool
	JSShell  bool
}

// PageLoader fetches a page and captures what the audit needs from it.
// Load returns a *LoadError (possibly wrapped) when the page cannot be
// retrieved.
type PageLoader interface {
	Load(ctx context.Context, url string) (*PageCapture, error)
}

// VisionJudge rates the visual design of a page screenshot on a 1-10
// scale. A returned error means the judgment could not be obtained at
// all; a non-judged Judgment carries its own reason.
type VisionJudge interface {
	Judge(ctx context.Context, screenshot []byte) (signals.Judgment, error)
}

// ReportSink renders and stores the per-site report for a scored result,
// returning where it was written.
type ReportSink interface {
	SaveReport(ctx context.Context, res *Result) (string, error)
}
