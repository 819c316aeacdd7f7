package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/metrics"
)

// Read retry policy. Three attempts with 50ms, 100ms backoff ride out a
// busy SQLite writer lock without holding a request for long.
const (
	readMaxAttempts = 3
	readBaseBackoff = 50 * time.Millisecond
)

// retrier retries idempotent reads that failed with a storage error.
// Validation, not-found and conflict errors are returned immediately.
type retrier struct {
	attempts int
	base     time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func newRetrier(logger *slog.Logger, m *metrics.Metrics) retrier {
	return retrier{attempts: readMaxAttempts, base: readBaseBackoff, logger: logger, metrics: m}
}

// retryRead runs fn until it succeeds, fails with a non-storage error, runs
// out of attempts, or ctx is done.
func retryRead[T any](ctx context.Context, r retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			backoff := r.base << (attempt - 1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			r.metrics.StorageRetry(op)
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !errors.Is(err, apperror.ErrStorage) {
			return zero, err
		}

		r.logger.Warn("storage read failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return zero, lastErr
}
