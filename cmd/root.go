// Package cmd defines the storefront-ingest command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/config"
	"github.com/JakeFAU/storefront-ingest/internal/logging"
)

// runtime carries the loaded configuration and logger into subcommands.
type runtime struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}
	cmd := &cobra.Command{
		Use:   "storefront-ingest",
		Short: "Resumable storefront catalog ingestion.",
		Long: `storefront-ingest walks a backlog of storefront identifiers, classifies each
one, and commits games and out-of-scope items to two relational stores. Runs
resume after the last committed identifier.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&rt.configPath, "config", "", "path to a config file (env vars use the INGEST_ prefix)")

	cmd.AddCommand(
		newIngestCmd(rt),
		newReprocessCmd(rt),
		newDiscoverCmd(rt),
		newCheckpointCmd(rt),
	)
	return cmd
}

// Execute runs the CLI with ctx as the cancellation root and returns the
// process exit code.
func Execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintf(os.Stderr, "storefront-ingest: %v\n", err)
		return 1
	}
	return 0
}
