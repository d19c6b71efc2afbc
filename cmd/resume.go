package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/batch"
	"github.com/leadfoundry/siteauditor/internal/prospects"
)

// newResumeCmd creates and configures the 'resume' subcommand.
func newResumeCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "resume <prospects.xlsx>",
		Short: "Resumes a spreadsheet batch",
		Long: `Audits the rows of a prospect spreadsheet that do not yet have a
score and writes the results back into the sheet. Rows that already
carry a score are left alone, so an interrupted batch can be rerun
until the sheet is complete. Failed audits record their reason in the
notes column but keep the score cell empty, and a later run retries
them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeCommand(cmd, args[0], concurrency)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "sites audited at once (defaults to batch.concurrency)")
	return cmd
}

func runResumeCommand(cmd *cobra.Command, path string, concurrency int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config
	logger := appInstance.Logger

	wb, err := prospects.OpenWorkbook(path)
	if err != nil {
		return err
	}
	defer wb.Close()

	pending := wb.Pending()
	if len(pending) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: every row already has a score\n", path)
		return nil
	}

	filter := prospects.NewHostFilter(prospects.DefaultExclusions())
	reqs := make([]audit.Request, 0, len(pending))
	rows := make([]int, 0, len(pending))
	for _, p := range pending {
		if host := audit.HostOf(p.Request.URL); filter.Excluded(host) {
			logger.Info("skipping prospect",
				zap.Int("row", p.Row),
				zap.String("url", p.Request.URL),
				zap.String("host", host))
			continue
		}
		reqs = append(reqs, p.Request)
		rows = append(rows, p.Row)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("%s: every pending row is on the exclusion list", path)
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
		batch.WithSource(filepath.Base(path)),
		batch.WithOnResult(func(idx int, res *audit.Result) {
			if err := wb.WriteResult(rows[idx], res); err != nil {
				logger.Warn("write result to workbook",
					zap.Int("row", rows[idx]), zap.Error(err))
			}
		}))

	res := runner.Run(cmd.Context(), reqs)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), hubDrainTimeout)
	defer cancelDrain()
	if err := hub.Close(drainCtx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}

	if err := wb.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Resumed %d of %d pending rows: %d scored, %d failed. Results written to %s.\n",
		len(reqs), len(pending), res.Completed, res.Failed, path)
	return nil
}
