package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/app"
	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/config"
	"github.com/leadfoundry/siteauditor/internal/judge"
	"github.com/leadfoundry/siteauditor/internal/report"
	"github.com/leadfoundry/siteauditor/internal/storage/memory"
)

// These tests swap the package-level app factory, so they must not run
// in parallel.

func TestAuditCommandPrintsSummary(t *testing.T) {
	swapAppFactory(t, testApp(t, &fakeLoader{}))

	out, err := execRoot(t, "audit", "https://smithcpa.com", "--company", "Smith CPA")
	require.NoError(t, err)

	require.Contains(t, out, "Smith CPA")
	require.Contains(t, out, "Visual Design")
	require.Contains(t, out, "Conversion")
	require.Contains(t, out, "Recommendation:")
	require.Contains(t, out, "Report: mem://")
}

func TestAuditCommandReportsLoadFailure(t *testing.T) {
	loader := &fakeLoader{err: &audit.LoadError{
		Kind: audit.LoadErrTimeout,
		URL:  "https://smithcpa.com",
		Err:  errors.New("deadline exceeded"),
	}}
	swapAppFactory(t, testApp(t, loader))

	_, err := execRoot(t, "audit", "https://smithcpa.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "audit of https://smithcpa.com failed")
}

func TestBatchCommandAuditsProspects(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "prospects.csv")
	data := "company,url\n" +
		"Smith CPA,https://smithcpa.com\n" +
		"Jones Tax,https://jonestax.com\n" +
		"Yelp Listing,https://yelp.com/biz/smith-cpa\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(data), 0o600))

	swapAppFactory(t, testApp(t, &fakeLoader{}))

	out, err := execRoot(t, "batch", csvPath, "--concurrency", "2")
	require.NoError(t, err)

	// The Yelp row is on the exclusion list and never reaches the table.
	require.Contains(t, out, "Smith CPA")
	require.Contains(t, out, "Jones Tax")
	require.NotContains(t, out, "Yelp Listing")
	require.Contains(t, out, "2 scored, 0 failed")
	require.Contains(t, out, "Results CSV: mem://")
}

func TestResumeCommandWritesScoresBack(t *testing.T) {
	path := writeTestWorkbook(t, [][]string{
		{"Company", "URL", "audit_score"},
		{"Done LLC", "https://done.example.com", "88.0"},
		{"Smith CPA", "https://smithcpa.com", ""},
	})

	swapAppFactory(t, testApp(t, &fakeLoader{}))

	out, err := execRoot(t, "resume", path)
	require.NoError(t, err)
	require.Contains(t, out, "Resumed 1 of 1 pending rows: 1 scored, 0 failed")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetList()[0]

	score, err := f.GetCellValue(sheet, "C3")
	require.NoError(t, err)
	require.NotEmpty(t, score)
	tier, err := f.GetCellValue(sheet, "D3")
	require.NoError(t, err)
	require.NotEmpty(t, tier)

	// The already-scored row keeps its original value.
	kept, err := f.GetCellValue(sheet, "C2")
	require.NoError(t, err)
	require.Equal(t, "88.0", kept)
}

func TestResumeCommandNothingPending(t *testing.T) {
	path := writeTestWorkbook(t, [][]string{
		{"Company", "URL", "audit_score"},
		{"Done LLC", "https://done.example.com", "88.0"},
	})

	swapAppFactory(t, testApp(t, &fakeLoader{}))

	out, err := execRoot(t, "resume", path)
	require.NoError(t, err)
	require.Contains(t, out, "every row already has a score")
}

func TestResolveAppWithoutContainer(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

// --- fakes ---

const sampleHTML = `<!DOCTYPE html><html><head><title>Smith CPA</title>` +
	`<meta name="viewport" content="width=device-width, initial-scale=1">` +
	`<meta name="description" content="Tax and accounting services for small businesses.">` +
	`</head><body><header><nav><a href="/services">Services</a></nav></header>` +
	`<main><h1>Smith CPA</h1><p>Call us at (555) 123-4567 or email info@smithcpa.com.</p>` +
	`<a class="button" href="/contact">Schedule a consultation</a></main>` +
	`<footer>&copy; 2025 Smith CPA</footer></body></html>`

type fakeLoader struct {
	err error
}

func (l *fakeLoader) Load(_ context.Context, url string) (*audit.PageCapture, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &audit.PageCapture{
		RawHTML:    sampleHTML,
		Title:      "Smith CPA",
		FinalURL:   url,
		StatusCode: 200,
		LoadTime:   1200 * time.Millisecond,
	}, nil
}

// testApp assembles a container over in-memory services and a stub
// loader, mirroring what app.Build would wire for real.
func testApp(t *testing.T, loader audit.PageLoader) *app.App {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	logger := zap.NewNop()
	blobs := memory.NewBlobStore()
	reports := report.NewWriter(blobs, logger)
	auditor := audit.New(loader, judge.Disabled{Reason: "visual judgment disabled: no API key"}, logger,
		audit.WithReportSink(reports))

	return &app.App{
		Config:  cfg,
		Logger:  logger,
		Blobs:   blobs,
		Audits:  memory.NewAuditRepository(),
		Batches: memory.NewBatchRepository(),
		Reports: reports,
		Auditor: auditor,
	}
}

// swapAppFactory installs a factory returning the prebuilt container and
// points the progress collectors at a throwaway registry.
func swapAppFactory(t *testing.T, a *app.App) {
	t.Helper()

	origFactory := newApp
	origRegisterer := progressRegisterer
	newApp = func(context.Context, config.Config, *zap.Logger) (*app.App, error) {
		return a, nil
	}
	progressRegisterer = prometheus.NewRegistry()
	t.Cleanup(func() {
		newApp = origFactory
		progressRegisterer = origRegisterer
	})
}

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeTestWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetList()[0]
	for r, row := range rows {
		for c, value := range row {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}
	path := filepath.Join(t.TempDir(), "prospects.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}
