// Package queue owns the broker side of enrollment processing: the RabbitMQ
// channel provider, an in-memory broker with the same dead-letter contract,
// and the delivery/acknowledgement types the consumer loop works with.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/pkg/retry"
)

// ErrClosed is returned when a broker is used after Close.
var ErrClosed = errors.New("queue: broker closed")

// Delivery is one message handed to the consumer. Body carries the UTF-8
// enrollment id.
type Delivery struct {
	Tag         uint64
	Body        []byte
	Redelivered bool
	// DeathCount is how many times the message has been dead-lettered, i.e. the
	// number of delayed retries already spent on it.
	DeathCount int64
}

// Acknowledger settles deliveries. Nack with requeue=false dead-letters the
// message, which the queue topology turns into a delayed redelivery.
type Acknowledger interface {
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// Publisher sends an enrollment id to the work queue.
type Publisher interface {
	Publish(ctx context.Context, enrollmentID string) error
}

// Source starts a consume session. The returned channel closes when the
// session ends, either through ctx or a broker-side failure.
type Source interface {
	Consume(ctx context.Context) (<-chan Delivery, Acknowledger, error)
}

// Pinger reports whether the broker is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connect pings the broker up to attempts times, waiting attempt*baseDelay
// after each failure. It returns the last error once attempts are exhausted.
func Connect(ctx context.Context, p Pinger, attempts int, baseDelay time.Duration, logger *zap.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = p.Ping(ctx)
		if lastErr == nil {
			logger.Info("connected to broker", zap.Int("attempt", attempt))
			return nil
		}
		if attempt == attempts {
			break
		}
		delay := retry.Linear(baseDelay, attempt)
		logger.Warn("broker not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr),
		)
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("could not connect to broker after %d attempts: %w", attempts, lastErr)
}
