// Package redisx wraps the go-redis/v9 client construction the scheduler and
// idempotence packages share, grounded on the teacher's internal/redis
// package (singleton-free here: this process only ever needs one client).
package redisx

import (
	"context"
	"crypto/tls"
	"fmt"

	r "github.com/redis/go-redis/v9"
)

type Config struct {
	Host       string
	Port       int
	Password   string
	Database   int
	TLSEnabled bool
}

// New connects a plain (non-cluster) client and verifies connectivity with a
// Ping before returning it, mirroring the teacher's createRegularClient.
func New(ctx context.Context, cfg Config) (*r.Client, error) {
	options := &r.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	}
	if cfg.TLSEnabled {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := r.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis client ping failed: %w", err)
	}
	return client, nil
}
