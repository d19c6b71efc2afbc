package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/api"
	"github.com/leadfoundry/siteauditor/internal/clock/system"
	"github.com/leadfoundry/siteauditor/internal/dispatcher"
	"github.com/leadfoundry/siteauditor/internal/id/uuid"
	queuememory "github.com/leadfoundry/siteauditor/internal/queue/memory"
	"github.com/leadfoundry/siteauditor/internal/telemetry"
	"github.com/leadfoundry/siteauditor/internal/worker"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// newServeCmd creates and configures the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the audit HTTP API",
		Long: `Serves the audit API. Submitted audits are queued and processed by a
worker pool, results are persisted to the configured store, and batch
runs recorded by the CLI are readable alongside them. Prometheus
metrics are exposed on /metrics.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config
	logger := appInstance.Logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, _, err := telemetry.InitTelemetry(ctx, telemetry.Settings{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		ProjectID:   cfg.Telemetry.ProjectID,
		Region:      cfg.Telemetry.Region,
	}); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	q := queuememory.NewQueue(cfg.Server.QueueDepth)
	clock := system.New()
	workers := make([]*worker.Worker, 0, cfg.Server.Workers)
	for i := 0; i < cfg.Server.Workers; i++ {
		workers = append(workers, worker.New(
			q,
			appInstance.Audits,
			appInstance.Auditor,
			appInstance.Publisher,
			clock,
			worker.Config{Topic: cfg.PubSub.TopicName},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(q, workers)

	apiServer := api.NewServer(
		appInstance.Audits,
		appInstance.Batches,
		dispatch,
		uuid.New(),
		clock,
		cfg,
		logger.Named("api"),
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	logger.Info("shutdown initiated")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}
	q.Close()
	<-dispatchDone
	logger.Info("shutdown complete")
	return runErr
}
