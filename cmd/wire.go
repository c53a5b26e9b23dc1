package cmd

import (
	"context"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/api"
	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	"github.com/JakeFAU/storefront-ingest/internal/clock/system"
	"github.com/JakeFAU/storefront-ingest/internal/config"
	"github.com/JakeFAU/storefront-ingest/internal/estimate"
	collyfetcher "github.com/JakeFAU/storefront-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-ingest/internal/id/uuid"
	"github.com/JakeFAU/storefront-ingest/internal/labels"
	"github.com/JakeFAU/storefront-ingest/internal/pipeline"
	"github.com/JakeFAU/storefront-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/storefront-ingest/internal/progress"
	"github.com/JakeFAU/storefront-ingest/internal/progress/sinks"
	pspublisher "github.com/JakeFAU/storefront-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/storefront-ingest/internal/retry"
	"github.com/JakeFAU/storefront-ingest/internal/skiplist"
	"github.com/JakeFAU/storefront-ingest/internal/source/storeapi"
	"github.com/JakeFAU/storefront-ingest/internal/storage/gcs"
	"github.com/JakeFAU/storefront-ingest/internal/storage/local"
	"github.com/JakeFAU/storefront-ingest/internal/storage/postgres"
)

const hubCloseTimeout = 15 * time.Second

// cleanup runs registered closers in reverse order.
type cleanup struct {
	fns []func()
}

func (c *cleanup) add(fn func()) {
	c.fns = append(c.fns, fn)
}

func (c *cleanup) run() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	c.fns = nil
}

func openBlobStore(ctx context.Context, cfg config.Config, done *cleanup) (catalog.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		done.add(func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return store, nil
	}
}

func openPool(ctx context.Context, cfg config.Config, dsn string, set postgres.MigrationSet, logger *zap.Logger, done *cleanup) (*pgxpool.Pool, error) {
	if cfg.DB.Migrate {
		if err := postgres.Migrate(dsn, set); err != nil {
			return nil, err
		}
		logger.Debug("migrations applied", zap.String("set", string(set)))
	}
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: dsn, MaxConns: int32(cfg.DB.MaxConns)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", set, err)
	}
	done.add(pool.Close)
	return pool, nil
}

// stores holds the relational stores of a pipeline run.
type stores struct {
	gamesPool *pgxpool.Pool
	itemsPool *pgxpool.Pool
	games     *postgres.GamesStore
	items     *postgres.ItemStore
	runs      *postgres.RunStore
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger, done *cleanup) (*stores, error) {
	gamesPool, err := openPool(ctx, cfg, cfg.DB.GamesDSN, postgres.GamesSchema, logger, done)
	if err != nil {
		return nil, err
	}
	itemsPool, err := openPool(ctx, cfg, cfg.DB.ItemsDSN, postgres.ItemsSchema, logger, done)
	if err != nil {
		return nil, err
	}
	games, err := postgres.NewGamesStore(gamesPool, 0)
	if err != nil {
		return nil, err
	}
	items, err := postgres.NewItemStore(itemsPool)
	if err != nil {
		return nil, err
	}
	runs, err := postgres.NewRunStore(gamesPool)
	if err != nil {
		return nil, err
	}
	return &stores{gamesPool: gamesPool, itemsPool: itemsPool, games: games, items: items, runs: runs}, nil
}

func (s *stores) readiness() map[string]api.Checker {
	return map[string]api.Checker{
		"games_db": s.gamesPool.Ping,
		"items_db": s.itemsPool.Ping,
	}
}

// startMetrics serves the operator endpoints in the background when an
// address is configured.
func startMetrics(ctx context.Context, cfg config.Config, opts api.Options, logger *zap.Logger, done *cleanup) {
	if cfg.Metrics.Addr == "" {
		return
	}
	opts.Logger = logger.Named("api")
	handler := api.NewServer(opts).Handler()
	serveCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := api.Serve(serveCtx, cfg.Metrics.Addr, handler, opts.Logger); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	done.add(func() {
		cancel()
		<-finished
	})
}

func newUpstreamFetcher(cfg config.Config) *collyfetcher.Fetcher {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Store.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	}, limiter)
}

func newPublisher(ctx context.Context, cfg config.Config, done *cleanup) (catalog.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher := pspublisher.New(client)
	done.add(func() {
		publisher.Close()
		_ = client.Close()
	})
	return publisher, nil
}

// newHub fans progress events out to logs, metrics, and run history.
func newHub(runs *postgres.RunStore, logger *zap.Logger, done *cleanup) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(runs, logger.Named("runs")),
	)
	done.add(func() {
		ctx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
		defer cancel()
		if err := hub.Close(ctx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	})
	return hub, nil
}

// pipelineEnv is a fully wired pipeline with the stores behind it.
type pipelineEnv struct {
	driver *pipeline.Driver
	stores *stores
	blobs  catalog.BlobStore
}

// buildDriver assembles the pipeline and everything it depends on.
func buildDriver(ctx context.Context, rt *runtime, done *cleanup) (*pipelineEnv, error) {
	cfg, logger := rt.cfg, rt.logger

	blobs, err := openBlobStore(ctx, cfg, done)
	if err != nil {
		return nil, err
	}
	st, err := openStores(ctx, cfg, logger, done)
	if err != nil {
		return nil, err
	}
	skip, err := skiplist.Load(ctx, blobs, cfg.Input.SkipListPath)
	if err != nil {
		return nil, err
	}
	publisher, err := newPublisher(ctx, cfg, done)
	if err != nil {
		return nil, err
	}
	hub, err := newHub(st.runs, logger, done)
	if err != nil {
		return nil, err
	}

	fetcher := newUpstreamFetcher(cfg)
	records := storeapi.New(storeapi.Config{
		BaseURL:        cfg.Store.BaseURL,
		Country:        cfg.Store.Country,
		UserAgent:      cfg.Store.UserAgent,
		AcceptLanguage: cfg.Store.AcceptLanguage,
		ScoreField:     cfg.Store.ScoreField,
	}, fetcher)
	tags := labels.New(labels.Config{BaseURL: cfg.Store.BaseURL, Headers: records.Headers()}, fetcher)

	var estimates catalog.EstimateResolver
	if cfg.Estimate.Enabled {
		estimates = estimate.New(estimate.Config{
			BaseURL:    cfg.Estimate.BaseURL,
			SearchPath: cfg.Estimate.SearchPath,
			PageSize:   cfg.Estimate.PageSize,
			UserAgent:  cfg.Store.UserAgent,
		}, fetcher, logger.Named("estimate"))
	}

	topic := ""
	if publisher != nil {
		topic = cfg.PubSub.TopicName
	}
	driver, err := pipeline.New(pipeline.Config{
		PrimaryLocale:   cfg.Store.PrimaryLocale,
		LocalizedLocale: cfg.Store.LocalizedLocale,
		ItemBudget:      cfg.ItemBudget(),
		Layout:          cfg.Layout(),
		Topic:           topic,
	}, pipeline.Deps{
		Records:   records,
		Labels:    tags,
		Estimates: estimates,
		Games:     st.games,
		Items:     st.items,
		SkipList:  skip,
		Retry:     retry.NewRunner(retry.Policy{MaxAttempts: cfg.HTTP.MaxAttempts, Delay: cfg.RetryDelay()}, nil, logger.Named("retry")),
		Clock:     system.New(),
		IDs:       uuid.New(),
		Publisher: publisher,
		Progress:  hub,
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, err
	}
	startMetrics(ctx, cfg, api.Options{Runs: st.runs, Ready: st.readiness()}, logger, done)
	return &pipelineEnv{driver: driver, stores: st, blobs: blobs}, nil
}
