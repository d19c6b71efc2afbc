package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/batch"
	"github.com/leadfoundry/siteauditor/internal/config"
	"github.com/leadfoundry/siteauditor/internal/progress"
	"github.com/leadfoundry/siteauditor/internal/progress/sinks"
	"github.com/leadfoundry/siteauditor/internal/prospects"
	"github.com/leadfoundry/siteauditor/internal/store"
)

const (
	// hubDrainTimeout bounds the progress flush after the run.
	hubDrainTimeout = 10 * time.Second
	// artifactSaveTimeout bounds artifact writes after a canceled run.
	artifactSaveTimeout = 30 * time.Second

	reportColumnMaxWidth = 60
)

// newBatchCmd creates and configures the 'batch' subcommand.
func newBatchCmd() *cobra.Command {
	var concurrency int
	var noFilter bool

	cmd := &cobra.Command{
		Use:   "batch <prospects.csv>",
		Short: "Audits every site in a prospect CSV",
		Long: `Reads a prospect list and audits every site concurrently. Each site
gets its own Markdown report; the batch as a whole produces a results
CSV and a Markdown summary grouped by outreach tier. Progress is
streamed to the log and recorded in the batch store as the run
advances, and a final table is printed when it finishes.

Directory and social-network hosts (Yelp, Facebook, and the like) are
skipped; pass --no-filter to audit them anyway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchCommand(cmd, args[0], concurrency, noFilter)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "sites audited at once (defaults to batch.concurrency)")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "audit directory and social hosts instead of skipping them")
	return cmd
}

func runBatchCommand(cmd *cobra.Command, path string, concurrency int, noFilter bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config
	logger := appInstance.Logger

	reqs, err := loadProspectsCSV(path)
	if err != nil {
		return err
	}

	filter := prospects.NewHostFilter(prospects.DefaultExclusions())
	if noFilter {
		filter = nil
	}
	kept, skipped := filter.Apply(reqs)
	for _, skip := range skipped {
		logger.Info("skipping prospect",
			zap.String("company", skip.Request.CompanyName),
			zap.String("url", skip.Request.URL),
			zap.String("reason", skip.Reason))
	}
	if len(kept) == 0 {
		return fmt.Errorf("%s: every prospect is on the exclusion list", path)
	}

	hub, err := buildProgressHub(cfg, appInstance.Batches, logger)
	if err != nil {
		return err
	}

	runCfg := batch.Config{Concurrency: cfg.Batch.Concurrency, SiteTimeout: cfg.SiteTimeout()}
	if concurrency > 0 {
		runCfg.Concurrency = concurrency
	}
	runner := batch.NewRunner(appInstance.Auditor, runCfg, logger,
		batch.WithEmitter(hub),
		batch.WithSource(filepath.Base(path)))

	res := runner.Run(cmd.Context(), kept)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), hubDrainTimeout)
	defer cancelDrain()
	if err := hub.Close(drainCtx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}

	// The run may have been canceled; the artifacts still get saved.
	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(cmd.Context()), artifactSaveTimeout)
	defer cancelSave()
	arts, err := appInstance.Reports.SaveBatch(saveCtx, res)
	if err != nil {
		logger.Warn("save batch artifacts", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	renderBatchTable(out, res)
	fmt.Fprintf(out, "\nBatch %s: %d scored, %d failed in %s\n",
		res.ID, res.Completed, res.Failed,
		res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	if arts.CSV != "" {
		fmt.Fprintf(out, "Results CSV: %s\n", arts.CSV)
	}
	if arts.Summary != "" {
		fmt.Fprintf(out, "Summary:     %s\n", arts.Summary)
	}
	return nil
}

func loadProspectsCSV(path string) ([]audit.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prospects: %w", err)
	}
	defer f.Close()
	return prospects.LoadCSV(f)
}

// progressRegisterer receives the batch progress collectors. It is a
// variable so tests can register against a throwaway registry.
var progressRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

// buildProgressHub wires the sinks every batch-style run reports to:
// structured logs, the batch repository, and Prometheus.
func buildProgressHub(cfg config.Config, batches store.BatchRepository, logger *zap.Logger) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(progressRegisterer)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	return progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.MaxBatchWait(),
		Logger:         logger,
	}, sinks.NewLogSink(logger), sinks.NewStoreSink(batches, logger), promSink), nil
}

// renderBatchTable prints one row per prospect in input order.
func renderBatchTable(out io.Writer, res *batch.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: reportColumnMaxWidth},
	})
	t.AppendHeader(table.Row{"#", "Company", "Score", "Tier", "Report"})
	for i, item := range res.Results {
		if item == nil {
			continue
		}
		score, tier, location := "-", "FAILED", failureReason(item)
		if item.Scored() {
			score = fmt.Sprintf("%.1f", item.TotalScore)
			tier = string(item.Tier)
			location = item.ReportPath
		}
		name := item.CompanyName
		if name == "" {
			name = item.URL
		}
		t.AppendRow(table.Row{i + 1, name, score, tier, location})
	}
	t.AppendFooter(table.Row{"", "Scored", res.Completed, "Failed", res.Failed})
	t.Render()
}

func failureReason(res *audit.Result) string {
	if res.Err != nil {
		return res.Err.Reason()
	}
	return "audit did not complete"
}
