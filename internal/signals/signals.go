// Package signals defines the raw measurements collected for one site before
// scoring. Every measurement is explicitly present or absent; an absent
// measurement carries the reason it could not be obtained so scorers can
// report it instead of guessing.
package signals

import "time"

// Signal is a single measured fact that may be absent. The zero value is
// absent with no reason.
type Signal[T any] struct {
	value   T
	present bool
	reason  string
}

// Present wraps a measured value.
func Present[T any](v T) Signal[T] {
	return Signal[T]{value: v, present: true}
}

// Absent records that a measurement could not be obtained and why.
func Absent[T any](reason string) Signal[T] {
	return Signal[T]{reason: reason}
}

// Value returns the measurement and whether it was obtained.
func (s Signal[T]) Value() (T, bool) {
	return s.value, s.present
}

// Or returns the measurement, or fallback when absent.
func (s Signal[T]) Or(fallback T) T {
	if s.present {
		return s.value
	}
	return fallback
}

// Reason explains why the measurement is absent. Empty for present signals.
func (s Signal[T]) Reason() string {
	if s.present {
		return ""
	}
	if s.reason == "" {
		return "not measured"
	}
	return s.reason
}

// JudgmentState describes the outcome of the visual-design judgment call.
type JudgmentState uint8

const (
	// JudgmentUnavailable means no judgment was attempted or possible
	// (disabled judge, no screenshot). Zero value on purpose.
	JudgmentUnavailable JudgmentState = iota
	// JudgmentJudged means the model returned a usable rating.
	JudgmentJudged
	// JudgmentErrored means the call was attempted and failed (transport
	// error, timeout, or unparseable reply).
	JudgmentErrored
)

func (s JudgmentState) String() string {
	switch s {
	case JudgmentJudged:
		return "judged"
	case JudgmentErrored:
		return "errored"
	default:
		return "unavailable"
	}
}

// Judgment is the qualitative visual-design verdict. It is an opaque input:
// the engine scores it but never validates it.
type Judgment struct {
	State     JudgmentState
	Rating    float64
	Rationale string
	Reason    string
}

// Judged builds a successful judgment.
func Judged(rating float64, rationale string) Judgment {
	return Judgment{State: JudgmentJudged, Rating: rating, Rationale: rationale}
}

// Unavailable builds a judgment that was never obtained.
func Unavailable(reason string) Judgment {
	return Judgment{State: JudgmentUnavailable, Reason: reason}
}

// Errored builds a judgment whose call failed.
func Errored(reason string) Judgment {
	return Judgment{State: JudgmentErrored, Reason: reason}
}

// SiteSignals is the immutable snapshot of everything extracted for one site.
// It is created once per audit attempt and owned by that audit; concurrent
// audits never share one.
type SiteSignals struct {
	URL      string
	FinalURL string

	// Markup facts.
	Title           Signal[string]
	MetaDescription Signal[string]
	H1Count         Signal[int]
	FooterNAP       Signal[bool]
	CTA             Signal[bool]
	ContactForm     Signal[bool]
	Phone           Signal[bool]
	TelLink         Signal[bool]
	Team            Signal[bool]
	Credentials     Signal[bool]
	MapsEmbed       Signal[bool]
	ViewportMeta    Signal[bool]

	// Performance facts.
	LoadTime Signal[time.Duration]

	// AI-derived qualitative judgment.
	Design Judgment
}
