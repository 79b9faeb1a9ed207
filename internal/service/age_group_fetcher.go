package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/pkg/retry"
)

// ErrAgeGroupsUnavailable is returned once every fetch attempt failed.
var ErrAgeGroupsUnavailable = errors.New("age groups unavailable")

type ageGroupLister interface {
	List(ctx context.Context) ([]models.AgeGroup, error)
}

// AgeGroupFetcher wraps the age-range client with bounded retries. The wait
// after attempt k is the cumulative step*(1+...+k): 3s, 9s, 18s, 30s for a
// 3s step.
type AgeGroupFetcher struct {
	client      ageGroupLister
	maxAttempts int
	step        time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewAgeGroupFetcher constructs the fetcher.
func NewAgeGroupFetcher(client ageGroupLister, maxAttempts int, step time.Duration, metrics *MetricsService, logger *zap.Logger) *AgeGroupFetcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgeGroupFetcher{
		client:      client,
		maxAttempts: maxAttempts,
		step:        step,
		sleep:       retry.Sleep,
		metrics:     metrics,
		logger:      logger,
	}
}

// Fetch returns the current age ranges or ErrAgeGroupsUnavailable wrapping the
// last failure. Every call starts a fresh attempt counter.
func (f *AgeGroupFetcher) Fetch(ctx context.Context) ([]models.AgeGroup, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		groups, err := f.client.List(ctx)
		f.metrics.RecordFetchAttempt(err == nil)
		if err == nil {
			return groups, nil
		}
		lastErr = err

		if attempt == f.maxAttempts {
			break
		}
		wait := retry.Cumulative(f.step, attempt)
		f.logger.Warn("age groups fetch failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.maxAttempts),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAgeGroupsUnavailable, err)
		}
	}
	f.logger.Error("age groups fetch exhausted", zap.Int("attempts", f.maxAttempts), zap.Error(lastErr))
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrAgeGroupsUnavailable, f.maxAttempts, lastErr)
}
