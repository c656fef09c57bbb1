// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Store     StoreConfig     `mapstructure:"store"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl engine and page fetcher.
type CrawlerConfig struct {
	UserAgent      string   `mapstructure:"user_agent"`
	DelaySeconds   int      `mapstructure:"delay_seconds"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	HopLimit       int      `mapstructure:"hop_limit"`
	TargetKeywords []string `mapstructure:"target_keywords"`
}

// ExtractorConfig carries the email filter blocklists.
type ExtractorConfig struct {
	ImageExtensions    []string `mapstructure:"image_extensions"`
	PlaceholderDomains []string `mapstructure:"placeholder_domains"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the relational task store.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StorageConfig selects where result artifacts are written.
type StorageConfig struct {
	Provider string           `mapstructure:"provider"`
	Local    LocalStoreConfig `mapstructure:"local"`
	GCS      GCSConfig        `mapstructure:"gcs"`
}

// LocalStoreConfig holds the filesystem artifact directory.
type LocalStoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// GCSConfig holds the Cloud Storage bucket for artifacts.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// PublisherConfig selects the completion-event publisher.
type PublisherConfig struct {
	Provider string    `mapstructure:"provider"`
	GCP      GCPConfig `mapstructure:"gcp"`
}

// GCPConfig holds Pub/Sub addressing for completion events.
type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// StreamConfig controls the progress stream tail.
type StreamConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (compatible; EmailHarvesterBot/1.0; +https://github.com/JakeFAU/email-harvester)")
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.hop_limit", 1)
	v.SetDefault("crawler.target_keywords",
		[]string{"about", "contact", "support", "contact-us", "about-us", "contactus", "aboutus"})
	v.SetDefault("extractor.image_extensions",
		[]string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp", ".tiff"})
	v.SetDefault("extractor.placeholder_domains",
		[]string{"example.com", "yourdomain.com", "email@domain.com", "sentry.io"})
	v.SetDefault("store.provider", "memory")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local.dir", "temp_files")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("stream.poll_interval_ms", 500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.HopLimit < 0 {
		return fmt.Errorf("crawler.hop_limit must be >= 0")
	}
	if c.Stream.PollIntervalMs <= 0 {
		return fmt.Errorf("stream.poll_interval_ms must be > 0")
	}
	switch c.Store.Provider {
	case "memory":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.provider is 'postgres' but store.postgres.dsn is not set")
		}
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	switch c.Storage.Provider {
	case "local":
		if c.Storage.Local.Dir == "" {
			return fmt.Errorf("storage.provider is 'local' but storage.local.dir is not set")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.provider is 'gcs' but storage.gcs.bucket is not set")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	switch c.Publisher.Provider {
	case "noop":
	case "pubsub":
		if c.Publisher.GCP.ProjectID == "" || c.Publisher.GCP.TopicID == "" {
			return fmt.Errorf("publisher.provider is 'pubsub' but project_id or topic_id is not set")
		}
	default:
		return fmt.Errorf("unknown publisher provider: %s", c.Publisher.Provider)
	}
	return nil
}

// CrawlDelay converts the configured pacing delay into a duration.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds) * time.Second
}

// FetchTimeout converts the per-fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// StreamPollInterval converts the stream poll interval into a duration.
func (c Config) StreamPollInterval() time.Duration {
	return time.Duration(c.Stream.PollIntervalMs) * time.Millisecond
}
