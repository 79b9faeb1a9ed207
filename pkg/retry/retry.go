// Package retry holds the small timing helpers shared by the broker connector
// and the upstream fetcher.
package retry

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Linear returns step*attempt.
func Linear(step time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return step * time.Duration(attempt)
}

// Cumulative returns the running sum step*(1+2+...+attempt): with a 3s step
// the waits after attempts 1..4 are 3s, 9s, 18s and 30s.
func Cumulative(step time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return step * time.Duration(attempt*(attempt+1)/2)
}
