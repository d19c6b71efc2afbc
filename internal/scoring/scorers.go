package scoring

import (
	"fmt"
	"strings"

	"github.com/leadfoundry/siteauditor/internal/signals"
)

// Opportunity messages, shared across scorers so deduplication and report
// wording stay consistent.
const (
	oppRedesign    = "Redesign the website to modernize its appearance and user experience"
	oppCTA         = "Add prominent call-to-action buttons"
	oppContactForm = "Add a contact form for lead capture"
	oppPhone       = "Display a phone number prominently"
	oppTeam        = "Add a team or about section to build credibility"
	oppCredentials = "Highlight professional credentials and certifications"
	oppMaps        = "Embed a Google Map of the office location"
	oppMetaDesc    = "Add a meta description for search visibility"
	oppH1          = "Add an H1 heading with target keywords"
	oppFooterNAP   = "Add name, address, and phone details to the site footer"
	oppLoadSpeed   = "Improve page load speed"
	oppViewport    = "Add a responsive viewport meta tag"
)

// ScoreAll runs every category scorer and returns results in priority order.
func ScoreAll(s signals.SiteSignals) [5]CategoryResult {
	return [5]CategoryResult{
		ScoreVisual(s),
		ScoreConversion(s),
		ScoreTrust(s),
		ScoreSEO(s),
		ScoreTechnical(s),
	}
}

// ScoreVisual scores the single AI-judged sub-check. A missing or failed
// judgment scores zero and is recorded as a finding, never raised as an error.
func ScoreVisual(s signals.SiteSignals) CategoryResult {
	b := newBuilder(CategoryVisual)
	if s.Design.State != signals.JudgmentJudged {
		reason := s.Design.Reason
		if reason == "" {
			reason = "no judgment returned"
		}
		b.finding(SeverityFail, "visual design judgment unavailable: "+reason)
		return b.result
	}

	// The prompt defines the scale as 1-10; off-scale replies are pulled
	// back to it so the total stays within budget.
	rating := clamp(s.Design.Rating, 1, 10)
	points := rating / 10 * visualBudget
	b.earn(points)
	if rating < 7 {
		b.finding(SeverityWarn, fmt.Sprintf("visual design rated %.1f/10, below the modern baseline", rating))
		b.opportunity(oppRedesign, visualBudget-points)
	} else {
		b.finding(SeverityPass, fmt.Sprintf("visual design rated %.1f/10", rating))
	}
	return b.result
}

// ScoreConversion checks for a clear CTA, a contact form, and a visible
// phone number.
func ScoreConversion(s signals.SiteSignals) CategoryResult {
	b := newBuilder(CategoryConversion)
	boolCheck(b, s.CTA, 10,
		"clear call-to-action found",
		"no clear call-to-action found", oppCTA)
	boolCheck(b, s.ContactForm, 8,
		"contact form found",
		"no contact form found", oppContactForm)
	phoneOK := boolCheck(b, s.Phone, 7,
		"phone number visible on the page",
		"no phone number found", oppPhone)
	if phoneOK {
		if tel, ok := s.TelLink.Value(); ok && !tel {
			b.finding(SeverityWarn, "phone number is not click-to-call (no tel: link)")
		}
	}
	return b.result
}

// ScoreTrust checks for team/about content, professional credentials, and an
// embedded map.
func ScoreTrust(s signals.SiteSignals) CategoryResult {
	b := newBuilder(CategoryTrust)
	boolCheck(b, s.Team, 7,
		"team or about section found",
		"no team or about section found", oppTeam)
	boolCheck(b, s.Credentials, 6,
		"professional credentials mentioned",
		"no professional credentials mentioned", oppCredentials)
	boolCheck(b, s.MapsEmbed, 7,
		"Google Maps embed found",
		"no Google Maps embed found", oppMaps)
	return b.result
}

// ScoreSEO checks the meta description, heading structure, and footer contact
// details, plus a zero-weight title-length advisory.
func ScoreSEO(s signals.SiteSignals) CategoryResult {
	b := newBuilder(CategorySEO)

	if desc, ok := s.MetaDescription.Value(); !ok {
		b.finding(SeverityFail, "meta description missing ("+s.MetaDescription.Reason()+")")
		b.opportunity(oppMetaDesc, 5)
	} else if strings.TrimSpace(desc) == "" {
		b.finding(SeverityFail, "meta description missing")
		b.opportunity(oppMetaDesc, 5)
	} else {
		b.earn(5)
		b.finding(SeverityPass, "meta description present")
	}

	if h1, ok := s.H1Count.Value(); !ok {
		b.finding(SeverityFail, "H1 heading not checked ("+s.H1Count.Reason()+")")
		b.opportunity(oppH1, 5)
	} else if h1 == 0 {
		b.finding(SeverityFail, "no H1 heading found")
		b.opportunity(oppH1, 5)
	} else {
		b.earn(5)
		if h1 > 1 {
			b.finding(SeverityWarn, fmt.Sprintf("multiple H1 tags (%d) dilute the heading structure", h1))
		} else {
			b.finding(SeverityPass, "single H1 heading present")
		}
	}

	boolCheck(b, s.FooterNAP, 5,
		"contact details present in the footer",
		"no name, address, or phone details in the footer", oppFooterNAP)

	if title, ok := s.Title.Value(); ok {
		switch n := len(strings.TrimSpace(title)); {
		case n == 0:
			b.finding(SeverityWarn, "title tag is empty")
		case n < 30:
			b.finding(SeverityWarn, fmt.Sprintf("title tag is short (%d chars, under 30)", n))
		case n > 60:
			b.finding(SeverityWarn, fmt.Sprintf("title tag is long (%d chars, over 60)", n))
		}
	}
	return b.result
}

// ScoreTechnical checks load time against the 3s/5s bands and the presence of
// a viewport meta tag.
func ScoreTechnical(s signals.SiteSignals) CategoryResult {
	b := newBuilder(CategoryTechnical)

	if lt, ok := s.LoadTime.Value(); !ok {
		b.finding(SeverityFail, "load time could not be measured ("+s.LoadTime.Reason()+")")
		b.opportunity(oppLoadSpeed, 5)
	} else {
		secs := lt.Seconds()
		switch {
		case secs < 3:
			b.earn(5)
			b.finding(SeverityPass, fmt.Sprintf("page loaded in %.1fs", secs))
		case secs < 5:
			b.earn(3)
			b.finding(SeverityWarn, fmt.Sprintf("page loaded in %.1fs, slower than the 3s target", secs))
			b.opportunity(oppLoadSpeed, 2)
		default:
			b.finding(SeverityFail, fmt.Sprintf("page took %.1fs to load", secs))
			b.opportunity(oppLoadSpeed, 5)
		}
	}

	boolCheck(b, s.ViewportMeta, 5,
		"responsive viewport meta tag present",
		"no viewport meta tag found", oppViewport)
	return b.result
}

// boolCheck scores a boolean sub-check worth weight points. Absence counts as
// a failure and the absence reason is appended to the finding. Returns true
// when the check passed.
func boolCheck(b *builder, sig signals.Signal[bool], weight float64, passMsg, failMsg, oppMsg string) bool {
	val, present := sig.Value()
	if present && val {
		b.earn(weight)
		b.finding(SeverityPass, passMsg)
		return true
	}
	msg := failMsg
	if !present {
		msg = failMsg + " (" + sig.Reason() + ")"
	}
	b.finding(SeverityFail, msg)
	b.opportunity(oppMsg, weight)
	return false
}
