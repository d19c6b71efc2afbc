// Package report renders audit results into the artifacts the outreach
// workflow consumes: a per-site Markdown report, a batch CSV, and a
// batch Markdown summary grouped by tier.
package report

import (
	"fmt"
	"strings"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/scoring"
)

const timestampLayout = "2006-01-02 15:04:05"

// RenderMarkdown produces the per-site report. Failed audits get a short
// document stating why the site could not be assessed.
func RenderMarkdown(res *audit.Result) string {
	var b strings.Builder

	title := res.CompanyName
	if title == "" {
		title = res.URL
	}
	fmt.Fprintf(&b, "# Website Audit: %s\n\n", title)

	fmt.Fprintf(&b, "- **URL:** %s\n", res.URL)
	if res.FinalURL != "" && res.FinalURL != res.URL {
		fmt.Fprintf(&b, "- **Final URL:** %s\n", res.FinalURL)
	}
	fmt.Fprintf(&b, "- **Audited:** %s UTC\n", res.Timestamp.UTC().Format(timestampLayout))

	if !res.Scored() {
		b.WriteString("\n## Audit Failed\n\n")
		reason := "page could not be loaded"
		if res.Err != nil {
			reason = res.Err.Reason()
		}
		fmt.Fprintf(&b, "This site could not be assessed: %s.\n", reason)
		return b.String()
	}

	capture := "static fetch"
	if res.Rendered {
		capture = "headless browser"
	}
	fmt.Fprintf(&b, "- **Capture:** %s\n", capture)
	fmt.Fprintf(&b, "- **Load time:** %.2fs\n", res.LoadTime.Seconds())
	if res.State == audit.StatePartial {
		b.WriteString("- **Coverage:** partial; some signals could not be measured, so the score is a floor\n")
	}

	fmt.Fprintf(&b, "\n## Score: %.1f / 100 (Grade %s)\n\n", res.TotalScore, res.Grade.Letter)
	if res.Grade.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", res.Grade.Summary)
	}
	fmt.Fprintf(&b, "**Recommendation: %s.** %s\n", res.Tier, res.Tier.Explanation())

	writeBreakdown(&b, res)
	writeFindings(&b, res)
	writeOpportunities(&b, res)
	writeNextSteps(&b, res)
	writeScreenshots(&b, res)

	return b.String()
}

func writeBreakdown(b *strings.Builder, res *audit.Result) {
	b.WriteString("\n## Category Breakdown\n\n")
	b.WriteString("| Category | Points | Possible |\n")
	b.WriteString("|----------|-------:|---------:|\n")
	for _, cr := range res.Categories {
		fmt.Fprintf(b, "| %s | %.1f | %.0f |\n", cr.Category, cr.PointsEarned, cr.PointsPossible)
	}
	fmt.Fprintf(b, "| **Total** | **%.1f** | **100** |\n", res.TotalScore)
}

func writeFindings(b *strings.Builder, res *audit.Result) {
	b.WriteString("\n## Findings\n")
	for _, cr := range res.Categories {
		fmt.Fprintf(b, "\n### %s (%.1f/%.0f)\n\n", cr.Category, cr.PointsEarned, cr.PointsPossible)
		for _, f := range cr.Findings {
			fmt.Fprintf(b, "- %s %s\n", severityMarker(f.Severity), f.Message)
		}
	}
}

func writeOpportunities(b *strings.Builder, res *audit.Result) {
	b.WriteString("\n## Top Opportunities\n\n")
	if len(res.RankedOpportunities) == 0 {
		b.WriteString("Nothing significant; the site already covers every check.\n")
		return
	}
	for i, opp := range res.RankedOpportunities {
		fmt.Fprintf(b, "%d. **%s** (%s, +%.1f points)\n", i+1, opp.Message, opp.Category, opp.Gain)
	}
}

func writeNextSteps(b *strings.Builder, res *audit.Result) {
	b.WriteString("\n## Next Steps\n\n")
	fmt.Fprintf(b, "1. %s\n", outreachStep(res.Tier))
	if len(res.RankedOpportunities) > 0 {
		fmt.Fprintf(b, "2. Open the conversation with the biggest gap: %s.\n",
			lowerFirst(res.RankedOpportunities[0].Message))
		b.WriteString("3. Re-audit after changes ship to verify the score moved.\n")
	} else {
		b.WriteString("2. Re-audit periodically to catch regressions.\n")
	}
}

func writeScreenshots(b *strings.Builder, res *audit.Result) {
	if res.Screenshots.Desktop == "" && res.Screenshots.Mobile == "" {
		return
	}
	b.WriteString("\n## Screenshots\n\n")
	if res.Screenshots.Desktop != "" {
		fmt.Fprintf(b, "- Desktop: %s\n", res.Screenshots.Desktop)
	}
	if res.Screenshots.Mobile != "" {
		fmt.Fprintf(b, "- Mobile: %s\n", res.Screenshots.Mobile)
	}
}

func severityMarker(s scoring.Severity) string {
	switch s {
	case scoring.SeverityPass:
		return "✓"
	case scoring.SeverityWarn:
		return "⚠"
	default:
		return "✗"
	}
}

func outreachStep(t scoring.Tier) string {
	switch t {
	case scoring.TierStrongYes:
		return "Reach out now; this site has clear, high-value gaps."
	case scoring.TierYes:
		return "Add to the active outreach queue."
	case scoring.TierMaybe:
		return "Queue behind stronger prospects and lead with the quick wins."
	default:
		return "Keep on the nurture list; no immediate pitch."
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
