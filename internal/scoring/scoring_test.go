package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadfoundry/siteauditor/internal/signals"
)

// goodSignals returns a fully present, healthy site: rating 9, every markup
// check passing, 1.5s load. Expected category scores: 27 + 25 + 20 + 15 + 10.
func goodSignals() signals.SiteSignals {
	return signals.SiteSignals{
		URL:             "https://example.com",
		Title:           signals.Present("Harrison Cole CPA | Accounting Services"),
		MetaDescription: signals.Present("Full-service accounting firm."),
		H1Count:         signals.Present(1),
		FooterNAP:       signals.Present(true),
		CTA:             signals.Present(true),
		ContactForm:     signals.Present(true),
		Phone:           signals.Present(true),
		TelLink:         signals.Present(true),
		Team:            signals.Present(true),
		Credentials:     signals.Present(true),
		MapsEmbed:       signals.Present(true),
		ViewportMeta:    signals.Present(true),
		LoadTime:        signals.Present(1500 * time.Millisecond),
		Design:          signals.Judged(9, "modern, clean layout"),
	}
}

func findingMessages(fs []Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Message)
	}
	return out
}

func TestScoreVisualJudged(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	r := ScoreVisual(s)
	require.Equal(t, CategoryVisual, r.Category)
	require.InDelta(t, 27.0, r.PointsEarned, 1e-9)
	require.Equal(t, 30.0, r.PointsPossible)
	require.Len(t, r.Findings, 1)
	require.Equal(t, SeverityPass, r.Findings[0].Severity)
	require.Empty(t, r.Opportunities)
}

func TestScoreVisualLowRating(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.Design = signals.Judged(5, "dated layout")
	r := ScoreVisual(s)
	require.InDelta(t, 15.0, r.PointsEarned, 1e-9)
	require.Len(t, r.Findings, 1)
	require.Equal(t, SeverityWarn, r.Findings[0].Severity)
	require.Len(t, r.Opportunities, 1)
	require.Equal(t, oppRedesign, r.Opportunities[0].Message)
	require.InDelta(t, 15.0, r.Opportunities[0].Gain, 1e-9)
}

func TestScoreVisualUnavailable(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.Design = signals.Unavailable("visual judgment disabled")
	r := ScoreVisual(s)
	require.Zero(t, r.PointsEarned)
	require.Len(t, r.Findings, 1)
	require.Equal(t, SeverityFail, r.Findings[0].Severity)
	require.Contains(t, r.Findings[0].Message, "unavailable")
	require.Contains(t, r.Findings[0].Message, "visual judgment disabled")
	require.Empty(t, r.Opportunities, "no observed deficiency, no suggestion")
}

func TestScoreVisualErrored(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.Design = signals.Errored("request timed out")
	r := ScoreVisual(s)
	require.Zero(t, r.PointsEarned)
	require.Contains(t, r.Findings[0].Message, "request timed out")
}

func TestScoreVisualClampsRating(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.Design = signals.Judged(14, "off the chart")
	r := ScoreVisual(s)
	require.InDelta(t, 30.0, r.PointsEarned, 1e-9)

	// The scale bottoms out at 1, so an off-scale low rating still earns
	// the floor's three points.
	s.Design = signals.Judged(-2, "below the floor")
	r = ScoreVisual(s)
	require.InDelta(t, 3.0, r.PointsEarned, 1e-9)
	require.Len(t, r.Opportunities, 1)
	require.InDelta(t, 27.0, r.Opportunities[0].Gain, 1e-9)
}

func TestScoreConversionAllPresent(t *testing.T) {
	t.Parallel()

	r := ScoreConversion(goodSignals())
	require.InDelta(t, 25.0, r.PointsEarned, 1e-9)
	require.Len(t, r.Findings, 3)
	require.Empty(t, r.Opportunities)
}

func TestScoreConversionTelAdvisory(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.TelLink = signals.Present(false)
	r := ScoreConversion(s)
	require.InDelta(t, 25.0, r.PointsEarned, 1e-9, "advisory does not cost points")
	require.Len(t, r.Findings, 4)
	require.Equal(t, SeverityWarn, r.Findings[3].Severity)
	require.Contains(t, r.Findings[3].Message, "tel:")
}

func TestScoreConversionAbsentSignals(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.CTA = signals.Absent[bool]("markup could not be parsed")
	s.ContactForm = signals.Absent[bool]("markup could not be parsed")
	s.Phone = signals.Absent[bool]("markup could not be parsed")
	r := ScoreConversion(s)
	require.Zero(t, r.PointsEarned)
	require.Len(t, r.Findings, 3)
	for _, f := range r.Findings {
		require.Equal(t, SeverityFail, f.Severity)
		require.Contains(t, f.Message, "markup could not be parsed")
	}
	require.Len(t, r.Opportunities, 3)
}

func TestScoreTrust(t *testing.T) {
	t.Parallel()

	r := ScoreTrust(goodSignals())
	require.InDelta(t, 20.0, r.PointsEarned, 1e-9)

	s := goodSignals()
	s.MapsEmbed = signals.Present(false)
	r = ScoreTrust(s)
	require.InDelta(t, 13.0, r.PointsEarned, 1e-9)
	require.Contains(t, findingMessages(r.Findings), "no Google Maps embed found")
	require.Len(t, r.Opportunities, 1)
	require.Equal(t, oppMaps, r.Opportunities[0].Message)
	require.InDelta(t, 7.0, r.Opportunities[0].Gain, 1e-9)
}

func TestScoreSEO(t *testing.T) {
	t.Parallel()

	r := ScoreSEO(goodSignals())
	require.InDelta(t, 15.0, r.PointsEarned, 1e-9)
	require.Empty(t, r.Opportunities)

	s := goodSignals()
	s.MetaDescription = signals.Present("   ")
	s.H1Count = signals.Present(0)
	s.FooterNAP = signals.Present(false)
	r = ScoreSEO(s)
	require.Zero(t, r.PointsEarned)
	require.Len(t, r.Opportunities, 3)
}

func TestScoreSEOMultipleH1Advisory(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.H1Count = signals.Present(3)
	r := ScoreSEO(s)
	require.InDelta(t, 15.0, r.PointsEarned, 1e-9, "multiple H1s still pass the check")
	var warned bool
	for _, f := range r.Findings {
		if f.Severity == SeverityWarn && strings.Contains(f.Message, "multiple H1") {
			warned = true
		}
	}
	require.True(t, warned)
}

func TestScoreSEOTitleLengthAdvisories(t *testing.T) {
	t.Parallel()

	short := goodSignals()
	short.Title = signals.Present("Home")
	r := ScoreSEO(short)
	require.Contains(t, strings.Join(findingMessages(r.Findings), "\n"), "short")

	long := goodSignals()
	long.Title = signals.Present(strings.Repeat("Accounting Services ", 4))
	r = ScoreSEO(long)
	require.Contains(t, strings.Join(findingMessages(r.Findings), "\n"), "long")
}

func TestScoreTechnicalLoadBands(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		load   time.Duration
		points float64
		sev    Severity
	}{
		"fast":   {load: 2 * time.Second, points: 5, sev: SeverityPass},
		"medium": {load: 4 * time.Second, points: 3, sev: SeverityWarn},
		"slow":   {load: 6 * time.Second, points: 0, sev: SeverityFail},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := goodSignals()
			s.LoadTime = signals.Present(tc.load)
			r := ScoreTechnical(s)
			require.InDelta(t, tc.points+5, r.PointsEarned, 1e-9)
			require.Equal(t, tc.sev, r.Findings[0].Severity)
		})
	}
}

func TestScoreTechnicalMediumLoadEmitsOpportunity(t *testing.T) {
	t.Parallel()

	s := goodSignals()
	s.LoadTime = signals.Present(4 * time.Second)
	r := ScoreTechnical(s)
	require.Len(t, r.Opportunities, 1)
	require.Equal(t, oppLoadSpeed, r.Opportunities[0].Message)
	require.InDelta(t, 2.0, r.Opportunities[0].Gain, 1e-9)
}

func TestBuilderDedupesOpportunities(t *testing.T) {
	t.Parallel()

	b := newBuilder(CategoryTechnical)
	b.opportunity(oppLoadSpeed, 5)
	b.opportunity(oppLoadSpeed, 2)
	b.opportunity(oppViewport, 5)
	require.Len(t, b.result.Opportunities, 2)
	require.InDelta(t, 5.0, b.result.Opportunities[0].Gain, 1e-9, "first emission wins")
}

func TestEverySubCheckEmitsExactlyOneFinding(t *testing.T) {
	t.Parallel()

	// Zero-value signals: everything absent, judgment unavailable.
	var s signals.SiteSignals
	wantFindings := map[Category]int{
		CategoryVisual:     1,
		CategoryConversion: 3,
		CategoryTrust:      3,
		CategorySEO:        3,
		CategoryTechnical:  2,
	}
	for _, r := range ScoreAll(s) {
		require.Equal(t, wantFindings[r.Category], len(r.Findings), "category %s", r.Category)
		require.Zero(t, r.PointsEarned)
		for _, f := range r.Findings {
			require.Equal(t, SeverityFail, f.Severity)
		}
	}
}
