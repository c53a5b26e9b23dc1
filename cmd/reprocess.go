package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront-ingest/internal/pipeline"
)

func newReprocessCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess",
		Short: "Retry every identifier in the skip-list",
		Long: `Replays identifiers whose upstream calls exhausted their retries in earlier
runs. The checkpoint never moves backwards and the skip-list is never pruned;
each replay's outcome is recorded in the run history under "reprocess".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), rt, func(ctx context.Context, env *pipelineEnv) (pipeline.Summary, error) {
				return env.driver.Reprocess(ctx)
			})
		},
	}
}
