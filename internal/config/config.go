// Package config loads HookFreight's process configuration the way the
// teacher's internal/config package does: struct tags parsed by
// github.com/caarlos0/env, an optional .env file via godotenv or an optional
// YAML file via gopkg.in/yaml.v3, and an InitDefaults/Validate pair rather
// than ad-hoc flag parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const Namespace = "HookFreight"

// configFileLocations mirrors the teacher's getConfigLocations fallback
// chain: the first of these that exists is loaded before environment
// variables, which always take precedence over it.
func configFileLocations() []string {
	return []string{
		".hookfreight.yaml",
		"config/hookfreight.yaml",
		"/config/hookfreight.yaml",
	}
}

var (
	ErrMissingPostgresURL = errors.New("config validation error: HOOKFREIGHT_POSTGRES_URL is required")
	ErrMissingRedisHost   = errors.New("config validation error: HOOKFREIGHT_REDIS_HOST is required")
	ErrInvalidConcurrency = errors.New("config validation error: HOOKFREIGHT_QUEUE_CONCURRENCY must be >= 1")
	ErrInvalidMaxRetries  = errors.New("config validation error: HOOKFREIGHT_QUEUE_MAX_RETRIES must be >= 0")
)

// Config is the complete set of environment-driven options (§6 of
// SPEC_FULL.md). Load applies InitDefaults after env parsing, filling only
// the fields still unset.
type Config struct {
	validated bool

	Port     int    `yaml:"port" env:"HOOKFREIGHT_PORT" desc:"HTTP listen port"`
	Host     string `yaml:"host" env:"HOOKFREIGHT_HOST" desc:"HTTP listen address"`
	BaseURL  string `yaml:"base_url" env:"HOOKFREIGHT_BASE_URL" desc:"Public base URL; used by the self-forward guard"`
	GinMode  string `yaml:"gin_mode" env:"HOOKFREIGHT_GIN_MODE" desc:"gin mode: debug, release, or test"`
	LogLevel string `yaml:"log_level" env:"HOOKFREIGHT_LOG_LEVEL" desc:"zap level: debug, info, warn, error"`

	MaxBodyBytes int `yaml:"max_body_bytes" env:"HOOKFREIGHT_MAX_BODY_BYTES" desc:"Maximum captured ingest body size"`

	QueueConcurrency int `yaml:"queue_concurrency" env:"HOOKFREIGHT_QUEUE_CONCURRENCY" desc:"Delivery worker pool size"`
	QueueMaxRetries  int `yaml:"queue_max_retries" env:"HOOKFREIGHT_QUEUE_MAX_RETRIES" desc:"Max delivery attempts per chain, first send included"`

	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms" env:"HOOKFREIGHT_SHUTDOWN_TIMEOUT_MS" desc:"Bound on graceful worker drain during shutdown"`

	PostgresURL string `yaml:"postgres_url" env:"HOOKFREIGHT_POSTGRES_URL" desc:"Primary store connection string" required:"Y"`

	RedisHost     string `yaml:"redis_host" env:"HOOKFREIGHT_REDIS_HOST" desc:"Scheduler's Redis host" required:"Y"`
	RedisPort     int    `yaml:"redis_port" env:"HOOKFREIGHT_REDIS_PORT" desc:"Scheduler's Redis port"`
	RedisPassword string `yaml:"redis_password" env:"HOOKFREIGHT_REDIS_PASSWORD" desc:"Scheduler's Redis password"`
	RedisDatabase int    `yaml:"redis_database" env:"HOOKFREIGHT_REDIS_DB" desc:"Scheduler's Redis logical database"`
}

func (c *Config) InitDefaults() {
	if c.Port == 0 {
		c.Port = 3030
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1_048_576
	}
	if c.QueueConcurrency == 0 {
		c.QueueConcurrency = 5
	}
	if c.ShutdownTimeoutMs == 0 {
		c.ShutdownTimeoutMs = 30_000
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
}

func (c *Config) Validate() error {
	if c.PostgresURL == "" {
		return ErrMissingPostgresURL
	}
	if c.RedisHost == "" {
		return ErrMissingRedisHost
	}
	if c.QueueConcurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.QueueMaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	c.validated = true
	return nil
}

func (c *Config) Validated() bool {
	return c.validated
}

// Load reads an optional YAML config file (first match of
// configFileLocations), then an optional .env file, then environment
// variables — each step only overriding fields it actually sets, so env
// vars always win over the YAML file, matching the teacher's load order.
// Defaults are applied last for anything still unset, then the result is
// validated.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := firstExistingConfigFile(); path != "" {
		if err := loadYAMLFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if loadErr := godotenv.Load(".env"); loadErr != nil {
			return nil, fmt.Errorf("failed to load .env: %w", loadErr)
		}
	}

	queueMaxRetriesSet := cfg.QueueMaxRetries != 0
	if !queueMaxRetriesSet {
		cfg.QueueMaxRetries = -1 // sentinel: "unset" until env parsing or default fills it
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.QueueMaxRetries < 0 {
		cfg.QueueMaxRetries = 5
	}
	cfg.InitDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstExistingConfigFile() string {
	for _, path := range configFileLocations() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(path), ".yaml") && !strings.HasSuffix(strings.ToLower(path), ".yml") {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing yaml config %s: %w", path, err)
	}
	return nil
}
