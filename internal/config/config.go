// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. H1B_DB_DSN.
const EnvPrefix = "H1B"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Crawler      CrawlerConfig      `mapstructure:"crawler"`
	Robots       RobotsConfig       `mapstructure:"robots"`
	Adapters     AdaptersConfig     `mapstructure:"adapters"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	DB           DBConfig           `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Progress     ProgressConfig     `mapstructure:"progress"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	// Sources seed the in-memory repository when no database is configured.
	Sources []crawler.Source `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs outbound requests.
type CrawlerConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	RobotsAgent  string        `mapstructure:"robots_agent"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// Techniques orders the header variations tried for each page.
	Techniques []string       `mapstructure:"techniques"`
	Headless   HeadlessConfig `mapstructure:"headless"`
	// SnapshotPages archives fetched search pages to the blob store.
	SnapshotPages bool `mapstructure:"snapshot_pages"`
}

// HeadlessConfig configures the rendered technique.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// ShellBytes is the body size under which a script-heavy page is rendered.
	ShellBytes int `mapstructure:"shell_bytes"`
}

// RobotsConfig tunes robots.txt handling.
type RobotsConfig struct {
	Respect bool          `mapstructure:"respect"`
	Timeout time.Duration `mapstructure:"timeout"`
	Cache   bool          `mapstructure:"cache"`
}

// AdaptersConfig holds per-adapter overrides.
type AdaptersConfig struct {
	GenericBoard BoardConfig `mapstructure:"generic_board"`
	VisaBoard    BoardConfig `mapstructure:"visa_board"`
}

// BoardConfig overrides one adapter's defaults; zero values keep them.
type BoardConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	MinDelay   time.Duration `mapstructure:"min_delay"`
	MaxPerPage int           `mapstructure:"max_per_page"`
}

// OrchestratorConfig controls pass execution.
type OrchestratorConfig struct {
	Concurrency          int           `mapstructure:"concurrency"`
	ListingRetentionDays int           `mapstructure:"listing_retention_days"`
	RunRetentionDays     int           `mapstructure:"run_retention_days"`
	PassTimeout          time.Duration `mapstructure:"pass_timeout"`
	PassLockWait         time.Duration `mapstructure:"pass_lock_wait"`
	PassLockTTL          time.Duration `mapstructure:"pass_lock_ttl"`
	ProcessTimeout       time.Duration `mapstructure:"process_timeout"`
}

// SchedulerConfig drives the cron trigger used by serve.
type SchedulerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Spec       string `mapstructure:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory repository.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// RedisConfig selects the distributed lock. An empty URL keeps locks in process.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Storage backends.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// StorageConfig selects where page snapshots go.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for pass summary notifications. An empty project keeps
// summaries in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig controls lifecycle event delivery. Events are always logged when
// enabled; Topic additionally publishes each batch.
type ProgressConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Topic    string        `mapstructure:"topic"`
	MaxBatch int           `mapstructure:"max_batch"`
	MaxWait  time.Duration `mapstructure:"max_wait"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.user_agent", "H1BJobsBot/1.0 (+https://github.com/JakeFAU/h1b-jobs-crawler)")
	v.SetDefault("crawler.robots_agent", "H1BJobsBot")
	v.SetDefault("crawler.fetch_timeout", "30s")
	v.SetDefault("crawler.techniques", []string{"direct", "browser_headers", "referer_headers"})
	v.SetDefault("crawler.snapshot_pages", false)
	v.SetDefault("crawler.headless.enabled", false)
	v.SetDefault("crawler.headless.max_parallel", 1)
	v.SetDefault("crawler.headless.nav_timeout", "25s")
	v.SetDefault("crawler.headless.settle_delay", "1s")
	v.SetDefault("crawler.headless.shell_bytes", 2048)
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.timeout", "10s")
	v.SetDefault("robots.cache", true)
	v.SetDefault("orchestrator.concurrency", 1)
	v.SetDefault("orchestrator.listing_retention_days", 30)
	v.SetDefault("orchestrator.run_retention_days", 7)
	v.SetDefault("orchestrator.pass_timeout", "1h")
	v.SetDefault("orchestrator.pass_lock_wait", "0s")
	v.SetDefault("orchestrator.pass_lock_ttl", "2h")
	v.SetDefault("orchestrator.process_timeout", "5m")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "@every 1h")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.retry_delay", "250ms")
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.base_dir", "data/snapshots")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "h1b")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "h1b-pass-summaries")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.topic", "")
	v.SetDefault("progress.max_batch", 64)
	v.SetDefault("progress.max_wait", "1s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Crawler.UserAgent) == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.FetchTimeout <= 0 {
		return fmt.Errorf("crawler.fetch_timeout must be > 0")
	}
	if c.Crawler.Headless.Enabled && c.Crawler.Headless.MaxParallel <= 0 {
		return fmt.Errorf("crawler.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Robots.Timeout <= 0 {
		return fmt.Errorf("robots.timeout must be > 0")
	}
	if c.Orchestrator.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be > 0")
	}
	if c.Orchestrator.ListingRetentionDays <= 0 || c.Orchestrator.RunRetentionDays <= 0 {
		return fmt.Errorf("orchestrator retention days must be > 0")
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.Spec) == "" {
		return fmt.Errorf("scheduler.spec must be set when the scheduler is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of none, memory, local, gcs", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is")
	}
	return validateSources(c.Sources)
}

func validateSources(sources []crawler.Source) error {
	seen := make(map[string]bool, len(sources))
	var errs []error
	for i, src := range sources {
		switch {
		case strings.TrimSpace(src.ID) == "":
			errs = append(errs, fmt.Errorf("sources[%d].id must be set", i))
		case seen[src.ID]:
			errs = append(errs, fmt.Errorf("sources[%d].id %q is duplicated", i, src.ID))
		}
		seen[src.ID] = true
		if strings.TrimSpace(src.Type) == "" {
			errs = append(errs, fmt.Errorf("sources[%d].type must be set", i))
		}
		if src.ScrapingFrequencyHours < 0 {
			errs = append(errs, fmt.Errorf("sources[%d].scraping_frequency_hours must be >= 0", i))
		}
	}
	return errors.Join(errs...)
}
