package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/batch"
	"github.com/leadfoundry/siteauditor/internal/scoring"
)

// RenderSummary produces the batch Markdown summary. Prospect groups
// are ordered by score ascending: the weakest sites have the most to
// gain and are the best leads.
func RenderSummary(res *batch.Result, csvURI string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Batch Audit Summary\n\n")
	fmt.Fprintf(&b, "- **Run:** %s\n", res.ID)
	fmt.Fprintf(&b, "- **Started:** %s UTC\n", res.StartedAt.UTC().Format(timestampLayout))
	fmt.Fprintf(&b, "- **Finished:** %s UTC (%s)\n",
		res.FinishedAt.UTC().Format(timestampLayout),
		res.FinishedAt.Sub(res.StartedAt).Round(time.Second).String())
	fmt.Fprintf(&b, "- **Sites:** %d audited, %d scored, %d failed\n",
		len(res.Results), res.Completed, res.Failed)

	b.WriteString("\n## Tier Counts\n\n")
	b.WriteString("| Tier | Count |\n|------|------:|\n")
	for _, tier := range []scoring.Tier{scoring.TierStrongYes, scoring.TierYes, scoring.TierMaybe, scoring.TierNo} {
		fmt.Fprintf(&b, "| %s | %d |\n", tier, res.TierCounts[tier])
	}

	prospects := filterTiers(res.Results, scoring.TierStrongYes, scoring.TierYes)
	writeGroup(&b, "Top Prospects", prospects,
		"No sites landed in the STRONG YES or YES tiers.")

	writeGroup(&b, "Worth a Look (MAYBE)", filterTiers(res.Results, scoring.TierMaybe), "")
	writeGroup(&b, "Low Priority (NO)", filterTiers(res.Results, scoring.TierNo), "")

	writeFailed(&b, res.Results)
	writeFiles(&b, res, csvURI)

	return b.String()
}

// filterTiers picks scored results in the given tiers, ordered by score
// ascending with URL as the stable tie-break.
func filterTiers(results []*audit.Result, tiers ...scoring.Tier) []*audit.Result {
	want := map[scoring.Tier]bool{}
	for _, t := range tiers {
		want[t] = true
	}
	var out []*audit.Result
	for _, res := range results {
		if res != nil && res.Scored() && want[res.Tier] {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore < out[j].TotalScore
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func writeGroup(b *strings.Builder, heading string, group []*audit.Result, emptyNote string) {
	if len(group) == 0 && emptyNote == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	if len(group) == 0 {
		fmt.Fprintf(b, "%s\n", emptyNote)
		return
	}
	b.WriteString("| Company | URL | Score | Tier | Report |\n")
	b.WriteString("|---------|-----|------:|------|--------|\n")
	for _, res := range group {
		fmt.Fprintf(b, "| %s | %s | %.1f | %s | %s |\n",
			res.CompanyName, res.URL, res.TotalScore, res.Tier, res.ReportPath)
	}
}

func writeFailed(b *strings.Builder, results []*audit.Result) {
	var failed []*audit.Result
	for _, res := range results {
		if res != nil && !res.Scored() {
			failed = append(failed, res)
		}
	}
	if len(failed) == 0 {
		return
	}
	b.WriteString("\n## Failed Audits\n\n")
	b.WriteString("| Company | URL | Reason |\n|---------|-----|--------|\n")
	for _, res := range failed {
		reason := "audit did not complete"
		if res.Err != nil {
			reason = res.Err.Reason()
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", res.CompanyName, res.URL, reason)
	}
}

func writeFiles(b *strings.Builder, res *batch.Result, csvURI string) {
	b.WriteString("\n## Files Generated\n\n")
	if csvURI != "" {
		fmt.Fprintf(b, "- Results CSV: %s\n", csvURI)
	}
	reports, shots := 0, 0
	for _, r := range res.Results {
		if r == nil {
			continue
		}
		if r.ReportPath != "" {
			reports++
		}
		if r.Screenshots.Desktop != "" {
			shots++
		}
		if r.Screenshots.Mobile != "" {
			shots++
		}
	}
	fmt.Fprintf(b, "- Site reports: %d\n", reports)
	fmt.Fprintf(b, "- Screenshots: %d\n", shots)
}
