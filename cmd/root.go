// Package cmd defines and implements the CLI commands for the siteauditor executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/app"
	"github.com/leadfoundry/siteauditor/internal/config"
	"github.com/leadfoundry/siteauditor/internal/logging"
)

const version = "0.1.0"

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp builds the service container. It is a variable so tests can
// substitute a prebuilt container.
var newApp = app.Build

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siteauditor",
		Short: "Scores accountant and CPA firm websites for outreach.",
		Long: `siteauditor audits accountant and CPA firm websites and scores them
as sales prospects. Each audit loads the site, extracts design,
conversion, trust, SEO, and technical signals, and produces a 0-100
score with an outreach tier and a ranked list of improvement
opportunities. Lower scores mean weaker sites, which make stronger
prospects.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// This hook runs before the subcommand's RunE. Configuration,
		// logging, and the service container are built here so every
		// subcommand finds them ready in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults to AUDITOR_* environment variables)")

	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// resolveApp retrieves the service container placed in the context by
// the root command's PersistentPreRunE.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	// Load .env before viper reads the environment.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "siteauditor: %v\n", err)
		os.Exit(1)
	}
}
