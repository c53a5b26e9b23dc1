package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/backlog"
	"github.com/JakeFAU/storefront-ingest/internal/pipeline"
)

func newIngestCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Process the backlog after the saved checkpoint",
		Long: `Loads the identifier backlog and processes every identifier greater than
the stored checkpoint in ascending order. Interrupting the command is safe;
the next invocation resumes after the last committed identifier.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), rt, func(ctx context.Context, env *pipelineEnv) (pipeline.Summary, error) {
				ids, err := backlog.Load(ctx, env.blobs, rt.cfg.Input.BacklogPath)
				if err != nil {
					return pipeline.Summary{}, fmt.Errorf("backlog %s: %w", rt.cfg.Input.BacklogPath, err)
				}
				return env.driver.Run(ctx, ids)
			})
		},
	}
}

type pipelineFunc func(ctx context.Context, env *pipelineEnv) (pipeline.Summary, error)

func runPipeline(ctx context.Context, rt *runtime, run pipelineFunc) error {
	done := &cleanup{}
	defer done.run()

	env, err := buildDriver(ctx, rt, done)
	if err != nil {
		return err
	}
	summary, err := run(ctx, env)
	if summary.Command != "" {
		rt.logger.Info("run summary",
			zap.String("run_id", summary.RunID.String()),
			zap.String("command", summary.Command),
			zap.String("state", string(summary.State)),
			zap.Int("total", summary.Total),
			zap.Int64("games", summary.Counts.Games),
			zap.Int64("failed", summary.Counts.Failed),
			zap.Int64("checkpoint", summary.Checkpoint),
			zap.Duration("elapsed", summary.Elapsed),
		)
	}
	return err
}
