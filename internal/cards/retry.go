package cards

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

// RetryPolicy is a fixed-count retry with a fixed delay between attempts.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration // per attempt
}

// DefaultRetry is used by full sequential and parallel runs.
var DefaultRetry = RetryPolicy{Attempts: 3, Delay: 2 * time.Second, Timeout: 30 * time.Second}

// HeavyRetry is used when re-fetching pages that failed a previous run.
var HeavyRetry = RetryPolicy{Attempts: 5, Delay: 3 * time.Second, Timeout: 55 * time.Second}

// FetchWithRetry fetches one page, retrying up to policy.Attempts times.
// The returned error is always a *FetchError.
func FetchWithRetry(ctx context.Context, f PageFetcher, page, pageSize int, policy RetryPolicy) ([]model.Card, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		cards, err := f.FetchPage(ctx, page, pageSize, policy.Timeout)
		if err == nil {
			return cards, nil
		}
		lastErr = err
		slog.Warn("page fetch failed",
			"page", page,
			"attempt", attempt,
			"retries_left", attempts-attempt,
			"error", err)

		if attempt == attempts {
			break
		}
		if err := ratelimit.Pause(ctx, policy.Delay); err != nil {
			lastErr = err
			break
		}
	}

	var fe *FetchError
	if errors.As(lastErr, &fe) {
		return nil, fe
	}
	return nil, &FetchError{Page: page, Cause: lastErr}
}
