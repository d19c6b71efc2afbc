package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/scoring"
	"github.com/leadfoundry/siteauditor/internal/signals"
)

// csvHeader is the batch results contract; downstream sheets and CRM
// imports key off these exact names and positions.
var csvHeader = []string{
	"company_name",
	"url",
	"recommendation",
	"score",
	"percentage",
	"total_issues",
	"has_clear_cta",
	"has_contact_form",
	"has_phone_number",
	"has_team_info",
	"has_credentials",
	"has_google_maps",
	"design_score",
	"load_time_seconds",
	"report_path",
	"error",
}

// WriteCSV streams one row per result, in the given order, after a
// header row.
func WriteCSV(w io.Writer, results []*audit.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := cw.Write(csvRow(res)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", res.URL, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvRow(res *audit.Result) []string {
	recommendation := ""
	errText := ""
	if res.Scored() {
		recommendation = string(res.Tier)
	} else if res.Err != nil {
		errText = res.Err.Reason()
	} else {
		errText = "audit did not complete"
	}

	return []string{
		res.CompanyName,
		res.URL,
		recommendation,
		strconv.FormatFloat(res.TotalScore, 'f', 1, 64),
		strconv.FormatFloat(res.Percentage, 'f', 1, 64),
		strconv.Itoa(len(res.RankedOpportunities)),
		boolField(res, func(s *signals.SiteSignals) signals.Signal[bool] { return s.CTA }),
		boolField(res, func(s *signals.SiteSignals) signals.Signal[bool] { return s.ContactForm }),
		boolField(res, func(s *signals.SiteSignals) signals.Signal[bool] { return s.Phone }),
		boolField(res, func(s *signals.SiteSignals) signals.Signal[bool] { return s.Team }),
		boolField(res, func(s *signals.SiteSignals) signals.Signal[bool] { return s.Credentials }),
		boolField(res, func(s *signals.SiteSignals) signals.Signal[bool] { return s.MapsEmbed }),
		strconv.FormatFloat(res.CategoryPoints(scoring.CategoryVisual), 'f', 1, 64),
		strconv.FormatFloat(res.LoadTime.Seconds(), 'f', 2, 64),
		res.ReportPath,
		errText,
	}
}

func boolField(res *audit.Result, pick func(*signals.SiteSignals) signals.Signal[bool]) string {
	if res.Signals == nil {
		return "false"
	}
	return strconv.FormatBool(pick(res.Signals).Or(false))
}
