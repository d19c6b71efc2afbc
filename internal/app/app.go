// Package app initializes and holds the long-lived services shared by
// every command, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/backoff"
	"github.com/leadfoundry/siteauditor/internal/config"
	"github.com/leadfoundry/siteauditor/internal/fetcher/headless"
	"github.com/leadfoundry/siteauditor/internal/fetcher/static"
	"github.com/leadfoundry/siteauditor/internal/judge"
	"github.com/leadfoundry/siteauditor/internal/publisher"
	pubsubpublisher "github.com/leadfoundry/siteauditor/internal/publisher/pubsub"
	"github.com/leadfoundry/siteauditor/internal/report"
	"github.com/leadfoundry/siteauditor/internal/storage"
	"github.com/leadfoundry/siteauditor/internal/storage/gcs"
	"github.com/leadfoundry/siteauditor/internal/storage/local"
	"github.com/leadfoundry/siteauditor/internal/storage/memory"
	"github.com/leadfoundry/siteauditor/internal/storage/postgres"
	"github.com/leadfoundry/siteauditor/internal/store"
)

// App holds the shared services built once at startup: blob storage,
// repositories, the page loader and judge behind the orchestrator, and
// the optional completion-event publisher. Commands pull what they need.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Blobs     storage.BlobStore
	Audits    store.AuditRepository
	Batches   store.BatchRepository
	Reports   *report.Writer
	Auditor   *audit.Orchestrator
	Publisher publisher.Publisher

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Build constructs every service the configuration selects. It fails
// fast: any provider that cannot initialize aborts startup, and services
// already built are closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.buildBlobStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := a.buildRepositories(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	loader := a.buildLoader(cfg, logger)
	vj, err := buildJudge(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Reports = report.NewWriter(a.Blobs, logger)
	a.Auditor = audit.New(loader, vj, logger,
		audit.WithScreenshotStore(a.Blobs),
		audit.WithReportSink(a.Reports),
		audit.WithJudgeTimeout(cfg.JudgeTimeout()),
	)
	if err := a.buildPublisher(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application services ready",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("db", cfg.DB.Driver),
		zap.Bool("browser", cfg.Browser.Enabled),
		zap.Bool("judge", cfg.Judge.APIKey != ""),
		zap.Bool("publisher", a.Publisher != nil),
	)
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	switch cfg.Storage.Provider {
	case "local":
		bs, err := local.NewBlobStore(cfg.Storage.LocalDir, logger)
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.Blobs = bs
	case "gcs":
		bs, err := gcs.NewBlobStore(ctx, cfg.Storage.GCSBucket, logger)
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.Blobs = bs
		a.addCloser("gcs blob store", func() error { return bs.Close(context.Background()) })
	case "memory":
		a.Blobs = memory.NewBlobStore()
	default:
		return fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
	return nil
}

func (a *App) buildRepositories(ctx context.Context, cfg config.Config) error {
	switch cfg.DB.Driver {
	case "postgres":
		audits, err := postgres.NewAuditStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: int32(cfg.DB.MaxConns),
		})
		if err != nil {
			return fmt.Errorf("init audit store: %w", err)
		}
		a.Audits = audits
		a.addCloser("audit store", func() error { audits.Close(); return nil })

		batches, err := postgres.NewBatchStore(ctx, cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("init batch store: %w", err)
		}
		a.Batches = batches
		a.addCloser("batch store", func() error { batches.Close(); return nil })
	case "memory":
		a.Audits = memory.NewAuditRepository()
		a.Batches = memory.NewBatchRepository()
	default:
		return fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
	return nil
}

// buildLoader prefers the headless browser when enabled and quietly
// falls back to the static loader when Chrome is unavailable, so a bare
// host can still audit sites (without screenshots).
func (a *App) buildLoader(cfg config.Config, logger *zap.Logger) audit.PageLoader {
	if cfg.Browser.Enabled {
		hl, err := headless.New(headless.Config{
			MaxParallel: cfg.Browser.MaxParallel,
			UserAgent:   cfg.Fetch.UserAgent,
			NavTimeout:  cfg.NavTimeout(),
			HostQPS:     cfg.Fetch.HostQPS,
		}, logger)
		if err == nil {
			a.addCloser("headless browser", func() error { hl.Close(); return nil })
			return hl
		}
		logger.Warn("headless browser unavailable, using static loader", zap.Error(err))
	}
	retry := backoff.NewPolicyWith(
		cfg.Fetch.MaxRetries,
		time.Duration(cfg.Fetch.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Fetch.BackoffMaxMs)*time.Millisecond,
	)
	return static.New(static.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		HostQPS:   cfg.Fetch.HostQPS,
	}, retry, logger)
}

func buildJudge(cfg config.Config, logger *zap.Logger) (audit.VisionJudge, error) {
	if cfg.Judge.APIKey == "" {
		return judge.Disabled{Reason: "visual judgment disabled: no API key"}, nil
	}
	vj, err := judge.New(judge.Config{
		APIKey:            cfg.Judge.APIKey,
		Model:             cfg.Judge.Model,
		MaxTokens:         int64(cfg.Judge.MaxTokens),
		Timeout:           cfg.JudgeTimeout(),
		RequestsPerMinute: cfg.Judge.RequestsPerMinute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init vision judge: %w", err)
	}
	return vj, nil
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.PubSub.TopicName == "" {
		return nil
	}
	if cfg.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is configured")
	}
	pub, closePub, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	logger.Info("publishing completion events", zap.String("topic", cfg.PubSub.TopicName))
	a.Publisher = pub
	a.addCloser("pubsub publisher", closePub)
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close shuts services down in reverse construction order and flushes
// the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Warn("close service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}
