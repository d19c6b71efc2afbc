package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

const maxPrintedOpportunities = 5

// newAuditCmd creates and configures the 'audit' subcommand.
func newAuditCmd() *cobra.Command {
	var company, notes string

	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Audits a single website",
		Long: `Runs the full audit pipeline against one website: page load, signal
extraction, category scoring, and report generation. The Markdown
report and any screenshots are written through the configured blob
store; the score summary is printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditCommand(cmd, args[0], company, notes)
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "company name for the report header")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes carried into the report")
	return cmd
}

func runAuditCommand(cmd *cobra.Command, url, company, notes string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	res := appInstance.Auditor.Audit(cmd.Context(), audit.Request{
		URL:         url,
		CompanyName: company,
		Notes:       notes,
	})
	if !res.Scored() {
		return fmt.Errorf("audit of %s failed: %s", url, failureReason(res))
	}

	printAuditSummary(cmd.OutOrStdout(), res)
	return nil
}

// printAuditSummary renders a scored result as a category breakdown
// followed by the recommendation and the strongest sales angles.
func printAuditSummary(out io.Writer, res *audit.Result) {
	site := res.FinalURL
	if site == "" {
		site = res.URL
	}
	if res.CompanyName != "" {
		fmt.Fprintf(out, "\n%s (%s)\n", res.CompanyName, site)
	} else {
		fmt.Fprintf(out, "\n%s\n", site)
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Points", "Max"})
	for _, cat := range res.Categories {
		t.AppendRow(table.Row{
			string(cat.Category),
			fmt.Sprintf("%.1f", cat.PointsEarned),
			fmt.Sprintf("%.0f", cat.PointsPossible),
		})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%.1f", res.TotalScore), "100"})
	t.Render()

	fmt.Fprintf(out, "\nGrade %s: %s\n", res.Grade.Letter, res.Grade.Summary)
	fmt.Fprintf(out, "Recommendation: %s (%s)\n", res.Tier, res.Tier.Explanation())
	if res.State == audit.StatePartial {
		fmt.Fprintln(out, "Some signals could not be measured; the score is a floor, not a grade.")
	}
	fmt.Fprintf(out, "Loaded in %dms", res.LoadTime.Milliseconds())
	if res.Rendered {
		fmt.Fprint(out, " (browser rendered)")
	}
	fmt.Fprintln(out)

	if len(res.RankedOpportunities) > 0 {
		fmt.Fprintln(out, "\nTop opportunities:")
		limit := len(res.RankedOpportunities)
		if limit > maxPrintedOpportunities {
			limit = maxPrintedOpportunities
		}
		for i := 0; i < limit; i++ {
			opp := res.RankedOpportunities[i]
			fmt.Fprintf(out, "  %d. [%s +%.1f] %s\n", i+1, opp.Category, opp.Gain, opp.Message)
		}
	}
	if res.ReportPath != "" {
		fmt.Fprintf(out, "\nReport: %s\n", res.ReportPath)
	}
}
