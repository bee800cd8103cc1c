// Package config loads and validates solcrawl configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Download DownloadConfig `mapstructure:"download"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// CrawlerConfig governs scope, budget, and extraction of the recursive crawl.
type CrawlerConfig struct {
	Domain            string        `mapstructure:"domain"`
	ResourceMarker    string        `mapstructure:"resource_marker"`
	LinkMarker        string        `mapstructure:"link_marker"`
	ExcludePaths      []string      `mapstructure:"exclude_paths"`
	MaxDepth          int           `mapstructure:"max_depth"`
	MaxPages          int           `mapstructure:"max_pages"`
	Delay             time.Duration `mapstructure:"delay"`
	FetchDescriptions bool          `mapstructure:"fetch_descriptions"`
	DebugHTML         bool          `mapstructure:"debug_html"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	ContentClass      string        `mapstructure:"content_class"`
	BackPrefix        string        `mapstructure:"back_prefix"`
}

// HTTPConfig configures the transport timeout and retry schedule.
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	RetryStatuses  []int         `mapstructure:"retry_statuses"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the pooled browser fetcher.
type HeadlessConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	WaitSelector    string        `mapstructure:"wait_selector"`
	SelectorTimeout time.Duration `mapstructure:"selector_timeout"`
	Settle          time.Duration `mapstructure:"settle"`
}

// OutputConfig names the checkpoint and final tree files.
type OutputConfig struct {
	Partial string `mapstructure:"partial"`
	Final   string `mapstructure:"final"`
}

// StorageConfig selects the blob backend for snapshots and downloads.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DownloadConfig bounds the batch downloader.
type DownloadConfig struct {
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// DBConfig controls the optional Postgres export of finished trees.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the completion notification target.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// New returns a Viper instance with env binding and defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
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
	v.SetDefault("crawler.domain", "analog.com")
	v.SetDefault("crawler.resource_marker", "/solutions/")
	v.SetDefault("crawler.link_marker", "/en/solutions")
	v.SetDefault("crawler.exclude_paths", []string{"/media-center/", "/videos/", "/index.html"})
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_pages", 500)
	v.SetDefault("crawler.delay", time.Second)
	v.SetDefault("crawler.fetch_descriptions", true)
	v.SetDefault("crawler.debug_html", false)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.content_class", "adi-rte")
	v.SetDefault("crawler.back_prefix", "Back to")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial", time.Second)
	v.SetDefault("http.backoff_max", 30*time.Second)
	v.SetDefault("http.retry_statuses", []int{429})
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 5)
	v.SetDefault("headless.nav_timeout", 15*time.Second)
	v.SetDefault("headless.wait_selector", "")
	v.SetDefault("headless.selector_timeout", 5*time.Second)
	v.SetDefault("headless.settle", time.Duration(0))
	v.SetDefault("output.partial", "partial_results.json")
	v.SetDefault("output.final", "crawl_results.json")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("download.max_concurrency", 4)
	v.SetDefault("download.rps", 2.0)
	v.SetDefault("download.burst", 1)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "crawl_nodes")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Domain == "" {
		return fmt.Errorf("crawler.domain is required")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.Delay < 0 {
		return fmt.Errorf("crawler.delay must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Download.MaxConcurrency <= 0 {
		return fmt.Errorf("download.max_concurrency must be > 0")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}
