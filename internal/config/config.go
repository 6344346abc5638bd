// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vastio/vastfetch/internal/vast"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
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

// FetchConfig sets default strategy knobs applied to requests that leave
// them unset, plus optional statically configured sources.
type FetchConfig struct {
	Mode              string              `mapstructure:"mode"`
	TimeoutSeconds    int                 `mapstructure:"timeout_seconds"`
	PerSourceSeconds  int                 `mapstructure:"per_source_timeout_seconds"`
	MaxRetries        int                 `mapstructure:"max_retries"`
	RetryDelayMs      int                 `mapstructure:"retry_delay_ms"`
	Sources           []vast.SourceConfig `mapstructure:"sources"`
	Fallbacks         []vast.SourceConfig `mapstructure:"fallbacks"`
	AutoTrackDefault  bool                `mapstructure:"auto_track_default"`
	MinDurationFilter int                 `mapstructure:"min_duration_filter"`
}

// HTTPConfig configures the shared pooled HTTP client.
type HTTPConfig struct {
	MaxIdleConns        int `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_conns_per_host"`
	IdleTimeoutSeconds  int `mapstructure:"idle_timeout_seconds"`
}

// TrackingConfig governs beacon firing.
type TrackingConfig struct {
	BeaconTimeoutMs int `mapstructure:"beacon_timeout_ms"`
}

// StoreConfig controls result persistence.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// ArchiveConfig controls creative archival.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PublisherConfig holds metadata for completion notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VASTFETCH")
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
	v.SetDefault("fetch.mode", "sequential")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.per_source_timeout_seconds", 10)
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.retry_delay_ms", 500)
	v.SetDefault("fetch.auto_track_default", false)
	v.SetDefault("http.max_idle_conns", 100)
	v.SetDefault("http.max_idle_conns_per_host", 10)
	v.SetDefault("http.idle_timeout_seconds", 90)
	v.SetDefault("tracking.beacon_timeout_ms", 3000)
	v.SetDefault("store.provider", "noop")
	v.SetDefault("store.table", "fetch_results")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "creatives")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if !vast.FetchMode(c.Fetch.Mode).Valid() {
		return fmt.Errorf("fetch.mode must be one of parallel, sequential, race")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Store.Provider == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when store.provider is postgres")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.TopicName == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when publisher.provider is pubsub")
	}
	return nil
}

// Strategy converts the configured defaults into a FetchStrategy.
func (c Config) Strategy() vast.FetchStrategy {
	return vast.FetchStrategy{
		Mode:               vast.FetchMode(c.Fetch.Mode),
		Timeout:            time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		PerSourceTimeout:   time.Duration(c.Fetch.PerSourceSeconds) * time.Second,
		MaxRetries:         c.Fetch.MaxRetries,
		RetryDelay:         time.Duration(c.Fetch.RetryDelayMs) * time.Millisecond,
		StopOnFirstSuccess: true,
	}
}
