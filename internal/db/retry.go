package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"encore.dev/rlog"
	"encore.dev/storage/sqldb"
)

// OpenStdlibWithRetry opens the stdlib handle for an Encore-managed database,
// retrying while the database container is still coming up.
func OpenStdlibWithRetry(ctx context.Context, database *sqldb.Database, maxRetries int, initialDelay time.Duration) (*sql.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		stdlib := database.Stdlib()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = stdlib.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			if attempt > 1 {
				rlog.Info("database connection established", "attempt", attempt)
			}
			return stdlib, nil
		}
		rlog.Warn("database connection failed",
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", lastErr,
		)
		if attempt < maxRetries {
			delay := initialDelay * time.Duration(1<<uint(attempt))
			if delay > 15*time.Second {
				delay = 15 * time.Second
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}
