package scheduler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/i474232898/prism-archive/internal/climate"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// delay returns the wait before retry number attempt (0-based).
func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if b.MaxInterval > 0 && d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

// retryable reports whether a fetch error is worth another attempt now.
// Unpublished dates and caller mistakes are not.
func retryable(err error) bool {
	return errors.Is(err, climate.ErrTransfer)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// the retry budget is spent.
func withRetry[T any](ctx context.Context, cfg BackoffConfig, fn func() (T, error)) (T, int, error) {
	var attempt int
	for {
		res, err := fn()
		if err == nil || !retryable(err) || attempt >= cfg.MaxRetries {
			return res, attempt, err
		}

		timer := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, attempt, ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}
		attempt++
	}
}
