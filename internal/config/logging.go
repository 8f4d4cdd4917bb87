package config

import (
	"strings"

	"go.uber.org/zap"
)

// LogConfigurationSummary returns zap fields summarizing the resolved
// configuration for a single startup log line, masking connection secrets
// the way the teacher's own LogConfigurationSummary does.
func (c *Config) LogConfigurationSummary() []zap.Field {
	return []zap.Field{
		zap.Int("port", c.Port),
		zap.String("host", c.Host),
		zap.String("base_url", c.BaseURL),
		zap.String("gin_mode", c.GinMode),
		zap.String("log_level", c.LogLevel),
		zap.Int("max_body_bytes", c.MaxBodyBytes),
		zap.Int("queue_concurrency", c.QueueConcurrency),
		zap.Int("queue_max_retries", c.QueueMaxRetries),
		zap.Int("shutdown_timeout_ms", c.ShutdownTimeoutMs),
		zap.Bool("postgres_configured", c.PostgresURL != ""),
		zap.String("postgres_host", maskPostgresURLHost(c.PostgresURL)),
		zap.String("redis_host", c.RedisHost),
		zap.Int("redis_port", c.RedisPort),
		zap.Bool("redis_password_configured", c.RedisPassword != ""),
		zap.Int("redis_database", c.RedisDatabase),
	}
}

// maskPostgresURLHost extracts host:port from a postgres URL without
// exposing the credentials embedded in it.
func maskPostgresURLHost(url string) string {
	if url == "" {
		return ""
	}
	idx := strings.Index(url, "@")
	if idx == -1 {
		return "not configured"
	}
	rest := url[idx+1:]
	if slashIdx := strings.Index(rest, "/"); slashIdx != -1 {
		return rest[:slashIdx]
	}
	if qIdx := strings.Index(rest, "?"); qIdx != -1 {
		return rest[:qIdx]
	}
	return rest
}
