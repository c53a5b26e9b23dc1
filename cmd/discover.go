package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/api"
	"github.com/JakeFAU/storefront-ingest/internal/discovery"
	"github.com/JakeFAU/storefront-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/storefront-ingest/internal/retry"
)

func newDiscoverCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Crawl the storefront search pages into the backlog",
		Long: `Drives headless Chrome through the storefront search results and merges
every identifier into the backlog document. The crawl resumes at the page
implied by the current backlog size and stops at the first empty page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger := rt.cfg, rt.logger
			done := &cleanup{}
			defer done.run()

			blobs, err := openBlobStore(ctx, cfg, done)
			if err != nil {
				return err
			}
			headers := http.Header{}
			if cfg.Store.AcceptLanguage != "" {
				headers.Set("Accept-Language", cfg.Store.AcceptLanguage)
			}
			renderer, err := headless.NewChromedp(headless.Config{
				UserAgent:        cfg.Store.UserAgent,
				Headers:          headers,
				WaitSelector:     discovery.ResultSelector,
				WaitTimeout:      cfg.DiscoveryWait(),
				SelectorOptional: true,
			})
			if err != nil {
				return err
			}
			done.add(renderer.Close)

			runner := retry.NewRunner(retry.Policy{
				MaxAttempts: cfg.Discovery.MaxAttempts,
				Delay:       cfg.DiscoveryRetryDelay(),
			}, nil, logger.Named("retry"))
			crawler, err := discovery.New(discovery.Config{
				SearchURL:       cfg.Discovery.SearchURL,
				ResultsPerPage:  cfg.Discovery.ResultsPerPage,
				SaveEvery:       cfg.Discovery.SaveEvery,
				MaxPages:        cfg.Discovery.MaxPages,
				MaxSkippedPages: cfg.Discovery.MaxSkippedPages,
				BacklogPath:     cfg.Input.BacklogPath,
			}, renderer, blobs, runner, logger.Named("discovery"))
			if err != nil {
				return err
			}
			startMetrics(ctx, cfg, api.Options{}, logger, done)

			res, err := crawler.Run(ctx)
			logger.Info("discovery summary",
				zap.Int("start_page", res.StartPage+1),
				zap.Int("pages", res.Pages),
				zap.Int("skipped", res.Skipped),
				zap.Int("total", res.Total),
			)
			return err
		},
	}
}
