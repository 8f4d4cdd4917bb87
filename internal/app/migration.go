package app

import (
	"context"
	"strings"
	"time"

	"github.com/hookfreight/hookfreight/internal/dbx"
	"go.uber.org/zap"
)

// runMigration applies pending schema migrations, retrying on advisory-lock
// conflicts from concurrently starting instances (SPEC_FULL.md §5's
// single-binary deployment may run more than one replica against the same
// Postgres). Grounded on the teacher's internal/app/migration.go retry
// strategy: most migrations finish well inside the retry delay, so a failed
// lock acquisition almost always succeeds on the next attempt.
func runMigration(ctx context.Context, postgresURL string, logger *zap.Logger) error {
	const (
		maxRetries = 3
		retryDelay = 5 * time.Second
	)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		m, err := dbx.NewMigrator(postgresURL)
		if err != nil {
			return err
		}

		upErr := m.Up(ctx)
		if closeErr := m.Close(); closeErr != nil {
			logger.Error("failed to close migrator", zap.Error(closeErr))
		}

		if upErr == nil {
			logger.Info("migrations applied")
			return nil
		}

		lastErr = upErr
		if !isLockRelatedError(upErr) {
			logger.Error("migration failed", zap.Error(upErr))
			return upErr
		}

		if attempt < maxRetries {
			logger.Warn("migration lock conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Error(upErr))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		} else {
			logger.Error("migration failed after retries", zap.Int("attempts", maxRetries), zap.Error(upErr))
		}
	}

	return lastErr
}

// isLockRelatedError recognizes golang-migrate's postgres advisory-lock
// failure messages.
func isLockRelatedError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	lockIndicators := []string{"can't acquire lock", "try lock failed"}
	for _, indicator := range lockIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}
