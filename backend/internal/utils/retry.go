package utils

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "hybrid-memory/backend/pkg/errors"
)

// RetryPolicy bounds a startup connectivity loop
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Retry calls fn until it succeeds or the attempt budget is spent, doubling
// the wait after each failure. It returns ErrBackendUnavailable wrapping the
// last error when every attempt fails.
func Retry(ctx context.Context, policy RetryPolicy, backend string, log *zap.Logger, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.Backoff

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.Warn("Retrying backend connection",
				zap.String("backend", backend),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return apperrors.NewContextCancelled("connect "+backend, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		log.Error("Backend connection failed",
			zap.String("backend", backend),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return apperrors.NewBackendUnavailable(backend, attempts, err)
}
