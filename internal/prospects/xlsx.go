package prospects

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

const (
	scoreHeader       = "audit_score"
	tierHeader        = "recommendation"
	resultNotesHeader = "audit_notes"

	// headerScanRows bounds how far down the sheet we look for the
	// header row; prospect exports sometimes carry a title block first.
	headerScanRows = 10
)

// Workbook wraps a prospect spreadsheet for the resume workflow: rows
// that already carry an audit score are skipped, and completed audits
// are written back in place.
type Workbook struct {
	f     *excelize.File
	sheet string
	mu    sync.Mutex

	// 1-based positions; 0 means the column is absent.
	headerRow  int
	urlCol     int
	companyCol int
	notesCol   int
	scoreCol   int
	tierCol    int
	resultCol  int

	rows [][]string
}

// PendingRow is a spreadsheet row still waiting for an audit.
type PendingRow struct {
	// Row is the 1-based spreadsheet row, for writing results back.
	Row     int
	Request audit.Request
}

// OpenWorkbook loads the first sheet, locates the prospect columns, and
// appends the result columns when they are missing.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	wb := &Workbook{f: f, sheet: sheet, rows: rows}
	if err := wb.locateColumns(); err != nil {
		f.Close()
		return nil, err
	}
	if err := wb.ensureResultColumns(); err != nil {
		f.Close()
		return nil, err
	}
	return wb, nil
}

func (w *Workbook) locateColumns() error {
	limit := len(w.rows)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		urlCol := findColumn(w.rows[i], urlHeaders)
		if urlCol < 0 {
			continue
		}
		w.headerRow = i + 1
		w.urlCol = urlCol + 1
		if c := findColumn(w.rows[i], companyHeaders); c >= 0 {
			w.companyCol = c + 1
		}
		if c := findColumn(w.rows[i], notesHeaders); c >= 0 {
			w.notesCol = c + 1
		}
		if c := findColumn(w.rows[i], []string{scoreHeader}); c >= 0 {
			w.scoreCol = c + 1
		}
		if c := findColumn(w.rows[i], []string{tierHeader}); c >= 0 {
			w.tierCol = c + 1
		}
		if c := findColumn(w.rows[i], []string{resultNotesHeader}); c >= 0 {
			w.resultCol = c + 1
		}
		return nil
	}
	return fmt.Errorf("workbook sheet %q: no url column in the first %d rows (accepted: %s)",
		w.sheet, headerScanRows, strings.Join(urlHeaders, ", "))
}

func (w *Workbook) ensureResultColumns() error {
	width := len(w.rows[w.headerRow-1])
	add := func(col *int, name string) error {
		if *col > 0 {
			return nil
		}
		width++
		*col = width
		return w.setCell(*col, w.headerRow, name)
	}
	if err := add(&w.scoreCol, scoreHeader); err != nil {
		return err
	}
	if err := add(&w.tierCol, tierHeader); err != nil {
		return err
	}
	return add(&w.resultCol, resultNotesHeader)
}

// Pending lists the rows that still need an audit: a URL is present and
// the score cell is empty. Rows whose audit previously failed keep an
// empty score, so a rerun picks them up again.
func (w *Workbook) Pending() []PendingRow {
	var out []PendingRow
	for i := w.headerRow; i < len(w.rows); i++ {
		rec := w.rows[i]
		url := cellAt(rec, w.urlCol)
		if url == "" {
			continue
		}
		if cellAt(rec, w.scoreCol) != "" {
			continue
		}
		req := audit.Request{
			URL:         url,
			CompanyName: cellAt(rec, w.companyCol),
			Notes:       cellAt(rec, w.notesCol),
		}
		if req.CompanyName == "" {
			req.CompanyName = strings.TrimPrefix(audit.HostOf(url), "www.")
		}
		out = append(out, PendingRow{Row: i + 1, Request: req})
	}
	return out
}

// WriteResult fills the result columns for one row. Failed audits leave
// the score cell empty; only the notes record what went wrong.
func (w *Workbook) WriteResult(row int, res *audit.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if res.Scored() {
		if err := w.setCell(w.scoreCol, row, fmt.Sprintf("%.1f", res.TotalScore)); err != nil {
			return err
		}
		if err := w.setCell(w.tierCol, row, string(res.Tier)); err != nil {
			return err
		}
		note := "no major gaps"
		if len(res.RankedOpportunities) > 0 {
			note = res.RankedOpportunities[0].Message
		}
		return w.setCell(w.resultCol, row, note)
	}

	reason := "audit did not complete"
	if res.Err != nil {
		reason = res.Err.Reason()
	}
	return w.setCell(w.resultCol, row, "audit failed: "+reason)
}

// Save writes the workbook back to its original path.
func (w *Workbook) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Close releases the file handle without saving.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// Sheet returns the worksheet results are written to.
func (w *Workbook) Sheet() string { return w.sheet }

func (w *Workbook) setCell(col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell (%d,%d): %w", col, row, err)
	}
	if err := w.f.SetCellValue(w.sheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}

func cellAt(rec []string, col int) string {
	if col <= 0 || col > len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[col-1])
}
