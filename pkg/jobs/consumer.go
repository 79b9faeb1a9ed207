// Package jobs runs the long-lived consume loop that feeds queue deliveries
// to a handler one at a time.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/pkg/queue"
	"github.com/enrollhub/enrollment-service/pkg/retry"
)

// Handler processes one delivery and settles it through ack.
type Handler interface {
	Handle(ctx context.Context, d queue.Delivery, ack queue.Acknowledger) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d queue.Delivery, ack queue.Acknowledger) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, d queue.Delivery, ack queue.Acknowledger) error {
	return f(ctx, d, ack)
}

// ConsumerConfig configures the consume loop.
type ConsumerConfig struct {
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

// Consumer reads deliveries from a queue.Source and hands them to the handler
// sequentially. When the session ends for any reason other than shutdown it
// waits ReconnectDelay and opens a new one.
type Consumer struct {
	name    string
	source  queue.Source
	handler Handler

	reconnectDelay time.Duration
	logger         *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewConsumer builds a consumer for the given source.
func NewConsumer(name string, source queue.Source, handler Handler, cfg ConsumerConfig) *Consumer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Consumer{
		name:           name,
		source:         source,
		handler:        handler,
		reconnectDelay: cfg.ReconnectDelay,
		logger:         cfg.Logger,
	}
}

// Start runs the consume loop in the background. Safe to call once.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.Run(c.ctx)
	}()
	c.started = true
}

// Stop cancels the loop and waits for the in-flight delivery to settle.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Info("consumer stopped", zap.String("queue", c.name))
}

// Run consumes until ctx is done and then returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, queue.ErrClosed) {
			c.logger.Info("queue closed, consumer exiting", zap.String("queue", c.name))
			return err
		}
		c.logger.Warn("consume session ended, reconnecting",
			zap.String("queue", c.name),
			zap.Duration("retry_in", c.reconnectDelay),
			zap.Error(err),
		)
		if err := retry.Sleep(ctx, c.reconnectDelay); err != nil {
			return err
		}
	}
}

func (c *Consumer) session(ctx context.Context) error {
	deliveries, ack, err := c.source.Consume(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("consuming", zap.String("queue", c.name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errSessionClosed
			}
			if err := c.handler.Handle(ctx, d, ack); err != nil && ctx.Err() == nil {
				c.logger.Error("delivery handling failed",
					zap.String("queue", c.name),
					zap.Uint64("delivery_tag", d.Tag),
					zap.Error(err),
				)
			}
		}
	}
}

var errSessionClosed = errors.New("jobs: delivery stream closed")
