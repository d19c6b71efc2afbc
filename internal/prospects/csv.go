// Package prospects reads audit targets from prospect lists (CSV and
// XLSX) and filters out hosts that are never worth auditing.
package prospects

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

var (
	urlHeaders     = []string{"url", "website", "site", "domain"}
	companyHeaders = []string{"company_name", "company", "name", "firm"}
	notesHeaders   = []string{"notes", "note", "comments", "comment"}
)

// LoadCSV parses a prospect list. The first row is a header; column
// names are matched case-insensitively against common aliases. Rows
// without a URL are skipped, and a missing company name falls back to
// the URL's host.
func LoadCSV(r io.Reader) ([]audit.Request, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse prospects csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("prospects csv is empty")
	}

	urlCol := findColumn(records[0], urlHeaders)
	companyCol := findColumn(records[0], companyHeaders)
	notesCol := findColumn(records[0], notesHeaders)
	if urlCol < 0 {
		return nil, fmt.Errorf("prospects csv: no url column (accepted: %s)", strings.Join(urlHeaders, ", "))
	}

	var reqs []audit.Request
	for _, rec := range records[1:] {
		url := field(rec, urlCol)
		if url == "" {
			continue
		}
		req := audit.Request{
			URL:         url,
			CompanyName: field(rec, companyCol),
			Notes:       field(rec, notesCol),
		}
		if req.CompanyName == "" {
			req.CompanyName = strings.TrimPrefix(audit.HostOf(url), "www.")
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, errors.New("prospects csv has no usable rows")
	}
	return reqs, nil
}

func findColumn(header []string, aliases []string) int {
	for i, name := range header {
		normalized := normalizeHeader(name)
		for _, alias := range aliases {
			if normalized == alias {
				return i
			}
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}
