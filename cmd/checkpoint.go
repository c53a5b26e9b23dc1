package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/storefront-ingest/internal/storage/postgres"
)

func newCheckpointCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Print the last committed identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			done := &cleanup{}
			defer done.run()

			pool, err := openPool(ctx, rt.cfg, rt.cfg.DB.GamesDSN, postgres.GamesSchema, rt.logger, done)
			if err != nil {
				return err
			}
			games, err := postgres.NewGamesStore(pool, 0)
			if err != nil {
				return err
			}
			checkpoint, err := games.Checkpoint(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), checkpoint)
			return err
		},
	}
}
