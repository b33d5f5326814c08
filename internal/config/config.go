// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob the crawl pipeline reads. Values come from an
// optional config file plus CRAWLER_* environment overrides.
type Config struct {
	Search     SearchConfig     `mapstructure:"search"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Output     OutputConfig     `mapstructure:"output"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SearchConfig seeds the listing discovery phase.
type SearchConfig struct {
	Keywords string `mapstructure:"keywords"`
	Location string `mapstructure:"location"`
	Limit    int    `mapstructure:"limit"`
	BaseURL  string `mapstructure:"base_url"`
	PageSize int    `mapstructure:"page_size"`
}

// HTTPConfig governs the session manager: timeouts, retry budget and the
// exponential backoff window.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// RateLimitConfig caps the request rate against the scraped host.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CheckpointConfig controls how often the interim batch file is rewritten.
type CheckpointConfig struct {
	Interval int `mapstructure:"interval"`
}

// OutputConfig sets where archives, checkpoints and snapshots land.
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	SaveSnapshots bool   `mapstructure:"save_snapshots"`
}

// ServerConfig enables the optional status/metrics endpoint. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
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
	v.SetDefault("search.keywords", "Data Scientist")
	v.SetDefault("search.location", "Remote")
	v.SetDefault("search.limit", 25)
	v.SetDefault("search.base_url", "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search")
	v.SetDefault("search.page_size", 25)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 4)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("rate_limit.requests_per_second", 0.5)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("checkpoint.interval", 10)
	v.SetDefault("output.dir", "data/raw")
	v.SetDefault("output.save_snapshots", false)
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be > 0")
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search.base_url must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffInitialMs <= 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http backoff window is invalid")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if c.Checkpoint.Interval <= 0 {
		return fmt.Errorf("checkpoint.interval must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff into a duration.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff ceiling into a duration.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}
