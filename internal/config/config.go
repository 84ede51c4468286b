// Package config loads and validates crawler-tool configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nhannt-dev/crawler-tool/internal/id/snowflake"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SnowflakeConfig provisions the node identity and epoch for the
// identifier generator. GroupID and MemberID must together be unique per
// concurrently running process; that coordination happens out-of-band.
type SnowflakeConfig struct {
	GroupID  int64  `mapstructure:"group_id"`
	MemberID int64  `mapstructure:"member_id"`
	Epoch    string `mapstructure:"epoch"`
}

// CrawlerConfig governs dispatcher and scrape pipeline behavior.
type CrawlerConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	UserAgent        string `mapstructure:"user_agent"`
	DelaySeconds     int    `mapstructure:"delay_seconds"`
	MaxPagesDefault  int    `mapstructure:"max_pages_default"`
	GlobalQueueDepth int    `mapstructure:"queue_depth"`
}

// HTTPConfig configures HTTP client behavior for static fetches.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig sets paths and content types for blob persistence.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int32  `mapstructure:"max_open_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. When
// Enabled is false the service runs on the in-memory queue and publisher.
type PubSubConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ProjectID         string `mapstructure:"project_id"`
	TopicName         string `mapstructure:"topic_name"`
	QueueTopic        string `mapstructure:"queue_topic"`
	QueueSubscription string `mapstructure:"queue_subscription"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("snowflake.group_id", 0)
	v.SetDefault("snowflake.member_id", 0)
	v.SetDefault("snowflake.epoch", "2021-01-01T00:00:00Z")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "crawler-tool/0.1")
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
}

// Validate enforces required values and reasonable limits. Snowflake node
// identity errors are fatal here so a misprovisioned process never issues
// a single identifier.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Snowflake.GroupID < 0 || c.Snowflake.GroupID > snowflake.MaxGroupID {
		return fmt.Errorf("snowflake.group_id must be in [0, %d]", snowflake.MaxGroupID)
	}
	if c.Snowflake.MemberID < 0 || c.Snowflake.MemberID > snowflake.MaxMemberID {
		return fmt.Errorf("snowflake.member_id must be in [0, %d]", snowflake.MaxMemberID)
	}
	if _, err := c.SnowflakeEpoch(); err != nil {
		return err
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// SnowflakeEpoch parses the configured epoch instant.
func (c Config) SnowflakeEpoch() (time.Time, error) {
	epoch, err := time.Parse(time.RFC3339, c.Snowflake.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("snowflake.epoch must be RFC3339: %w", err)
	}
	return epoch, nil
}

// FetchBudget converts the HTTP timeout config into a duration.
func (c Config) FetchBudget() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
