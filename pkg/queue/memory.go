package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryConfig configures the in-memory broker.
type MemoryConfig struct {
	BufferSize int
	MessageTTL time.Duration
	Logger     *zap.Logger
}

// MemoryBroker is an in-process broker with the work queue's contract: one
// queue, manual acknowledgement, and dead-lettering back onto the queue after
// MessageTTL when a delivery is nacked without requeue.
type MemoryBroker struct {
	name       string
	messageTTL time.Duration
	logger     *zap.Logger

	deliveries chan Delivery
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	nextTag  uint64
	inflight map[uint64]Delivery
	closed   bool
}

// NewMemoryBroker builds a broker ready to accept publishes.
func NewMemoryBroker(name string, cfg MemoryConfig) *MemoryBroker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryBroker{
		name:       name,
		messageTTL: cfg.MessageTTL,
		logger:     cfg.Logger,
		deliveries: make(chan Delivery, cfg.BufferSize),
		ctx:        ctx,
		cancel:     cancel,
		inflight:   make(map[uint64]Delivery),
	}
}

// Publish enqueues an enrollment id.
func (b *MemoryBroker) Publish(ctx context.Context, enrollmentID string) error {
	return b.enqueue(ctx, Delivery{Body: []byte(enrollmentID)})
}

// Consume starts a consume session; the broker itself settles deliveries. The
// returned channel closes when ctx ends or the broker is closed.
func (b *MemoryBroker) Consume(ctx context.Context) (<-chan Delivery, Acknowledger, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.ctx.Done():
				return
			case d := <-b.deliveries:
				select {
				case out <- d:
				case <-ctx.Done():
					b.putBack(d)
					return
				case <-b.ctx.Done():
					return
				}
			}
		}
	}()
	return out, b, nil
}

// Ack settles a delivery.
func (b *MemoryBroker) Ack(tag uint64) error {
	_, err := b.settle(tag)
	return err
}

// Nack settles a delivery negatively. With requeue the message is delivered
// again immediately; without it the message is dead-lettered and comes back
// after the message TTL.
func (b *MemoryBroker) Nack(tag uint64, requeue bool) error {
	d, err := b.settle(tag)
	if err != nil {
		return err
	}
	if requeue {
		d.Redelivered = true
		return b.enqueue(b.ctx, d)
	}

	d.Redelivered = false
	d.DeathCount++
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()
	go func(d Delivery) {
		defer b.wg.Done()
		timer := time.NewTimer(b.messageTTL)
		defer timer.Stop()
		select {
		case <-b.ctx.Done():
			return
		case <-timer.C:
			if err := b.enqueue(b.ctx, d); err != nil {
				b.logger.Warn("dead-letter redelivery failed", zap.String("queue", b.name), zap.Error(err))
			}
		}
	}(d)
	return nil
}

// Inflight reports the number of delivered but unsettled messages.
func (b *MemoryBroker) Inflight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Ping fails once the broker is closed.
func (b *MemoryBroker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close ends every consume session and drops pending dead-letter timers.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *MemoryBroker) enqueue(ctx context.Context, d Delivery) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.nextTag++
	d.Tag = b.nextTag
	b.inflight[d.Tag] = d
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		b.drop(d.Tag)
		return fmt.Errorf("queue %s: %w", b.name, ctx.Err())
	case <-b.ctx.Done():
		b.drop(d.Tag)
		return ErrClosed
	case b.deliveries <- d:
		return nil
	}
}

func (b *MemoryBroker) settle(tag uint64) (Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.inflight[tag]
	if !ok {
		return Delivery{}, fmt.Errorf("queue %s: unknown delivery tag %d", b.name, tag)
	}
	delete(b.inflight, tag)
	return d, nil
}

// putBack returns a delivery taken off the buffer but never handed to a
// consumer.
func (b *MemoryBroker) putBack(d Delivery) {
	select {
	case b.deliveries <- d:
	default:
		b.drop(d.Tag)
		b.logger.Warn("queue full, delivery dropped", zap.String("queue", b.name), zap.Uint64("tag", d.Tag))
	}
}

func (b *MemoryBroker) drop(tag uint64) {
	b.mu.Lock()
	delete(b.inflight, tag)
	b.mu.Unlock()
}
