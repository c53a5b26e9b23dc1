// Package config loads and validates ingest configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

// Config captures all ingest configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Input     InputConfig     `mapstructure:"input"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Store     StoreConfig     `mapstructure:"store"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Estimate  EstimateConfig  `mapstructure:"estimate"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// InputConfig names the durable documents read and written by a run.
type InputConfig struct {
	BacklogPath  string `mapstructure:"backlog_path"`
	SkipListPath string `mapstructure:"skiplist_path"`
}

// StorageConfig selects the blob backend for backlog and skip-list files.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// StoreConfig describes the storefront endpoints and request identity.
type StoreConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Country         string `mapstructure:"country"`
	PrimaryLocale   string `mapstructure:"primary_locale"`
	LocalizedLocale string `mapstructure:"localized_locale"`
	UserAgent       string `mapstructure:"user_agent"`
	AcceptLanguage  string `mapstructure:"accept_language"`
	ScoreField      string `mapstructure:"score_field"`
}

// HTTPConfig configures outbound request timeouts, retries, and throttling.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	RetryDelayMs      int     `mapstructure:"retry_delay_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// EstimateConfig controls the completion-time lookup service.
type EstimateConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	SearchPath string `mapstructure:"search_path"`
	PageSize   int    `mapstructure:"page_size"`
}

// PipelineConfig governs the driver loop.
type PipelineConfig struct {
	MinItemSeconds float64 `mapstructure:"min_item_seconds"`
	Layout         string  `mapstructure:"layout"`
}

// DBConfig controls access to the two relational stores.
type DBConfig struct {
	GamesDSN string `mapstructure:"games_dsn"`
	ItemsDSN string `mapstructure:"items_dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for commit notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DiscoveryConfig controls the headless identifier crawler.
type DiscoveryConfig struct {
	SearchURL          string `mapstructure:"search_url"`
	ResultsPerPage     int    `mapstructure:"results_per_page"`
	WaitTimeoutSeconds int    `mapstructure:"wait_timeout_seconds"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	RetryDelayMs       int    `mapstructure:"retry_delay_ms"`
	SaveEvery          int    `mapstructure:"save_every"`
	MaxPages           int    `mapstructure:"max_pages"`
	MaxSkippedPages    int    `mapstructure:"max_skipped_pages"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("input.backlog_path", "steam_appids.json")
	v.SetDefault("input.skiplist_path", "skipped_appids.json")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("store.base_url", "https://store.steampowered.com")
	v.SetDefault("store.country", "US")
	v.SetDefault("store.primary_locale", "en")
	v.SetDefault("store.localized_locale", "ru")
	v.SetDefault("store.user_agent", "Mozilla/5.0")
	v.SetDefault("store.accept_language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("store.score_field", "review_score")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.retry_delay_ms", 2000)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("estimate.enabled", true)
	v.SetDefault("estimate.base_url", "https://howlongtobeat.com")
	v.SetDefault("estimate.search_path", "/api/search")
	v.SetDefault("estimate.page_size", 20)
	v.SetDefault("pipeline.min_item_seconds", 3)
	v.SetDefault("pipeline.layout", string(catalog.LayoutNormalized))
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("discovery.search_url", "https://store.steampowered.com/search/")
	v.SetDefault("discovery.results_per_page", 50)
	v.SetDefault("discovery.wait_timeout_seconds", 10)
	v.SetDefault("discovery.max_attempts", 3)
	v.SetDefault("discovery.retry_delay_ms", 2000)
	v.SetDefault("discovery.save_every", 1)
	v.SetDefault("discovery.max_pages", 0)
	v.SetDefault("discovery.max_skipped_pages", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.GamesDSN == "" {
		return fmt.Errorf("db.games_dsn is required")
	}
	if c.DB.ItemsDSN == "" {
		return fmt.Errorf("db.items_dsn is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.Pipeline.MinItemSeconds < 0 {
		return fmt.Errorf("pipeline.min_item_seconds must be >= 0")
	}
	if _, ok := catalog.ParseLayout(c.Pipeline.Layout); !ok {
		return fmt.Errorf("pipeline.layout %q is not supported", c.Pipeline.Layout)
	}
	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Store.ScoreField {
	case "review_score", "review_score_desc":
	default:
		return fmt.Errorf("store.score_field %q is not supported", c.Store.ScoreField)
	}
	return nil
}

// RequestTimeout is the per-call HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryDelay is the fixed wait between attempts of one upstream call.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.HTTP.RetryDelayMs) * time.Millisecond
}

// ItemBudget is the minimum wall-clock time spent per identifier.
func (c Config) ItemBudget() time.Duration {
	return time.Duration(c.Pipeline.MinItemSeconds * float64(time.Second))
}

// Layout returns the validated persistence layout.
func (c Config) Layout() catalog.Layout {
	layout, _ := catalog.ParseLayout(c.Pipeline.Layout)
	return layout
}

// DiscoveryWait is how long a search page may take to show result rows.
func (c Config) DiscoveryWait() time.Duration {
	return time.Duration(c.Discovery.WaitTimeoutSeconds) * time.Second
}

// DiscoveryRetryDelay is the fixed wait between page attempts.
func (c Config) DiscoveryRetryDelay() time.Duration {
	return time.Duration(c.Discovery.RetryDelayMs) * time.Millisecond
}
