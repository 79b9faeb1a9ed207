package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/pkg/config"
)

// ErrConnectivity wraps failures to reach or configure the broker.
var ErrConnectivity = errors.New("queue: broker connectivity")

type dialFunc func(url string) (*amqp.Connection, error)

// RabbitProvider owns the process' single connection and channel to
// RabbitMQ. Channel recreates both when they are missing or closed.
type RabbitProvider struct {
	cfg    config.RabbitConfig
	logger *zap.Logger
	dial   dialFunc

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitProvider constructs a provider; no connection is opened until the
// first call to Channel.
func NewRabbitProvider(cfg config.RabbitConfig, logger *zap.Logger) *RabbitProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &RabbitProvider{cfg: cfg, logger: logger, dial: amqp.Dial}
}

// QueueArgs returns the work queue declaration arguments. A message nacked
// without requeue is dead-lettered through the default exchange back onto the
// same queue once ttl elapses.
func QueueArgs(queueName string, ttl time.Duration) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queueName,
		"x-message-ttl":             ttl.Milliseconds(),
	}
}

// Channel returns the shared channel, opening a connection and declaring the
// durable work queue when none is usable.
func (p *RabbitProvider) Channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := p.dial(p.cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrConnectivity, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", ErrConnectivity, err)
	}
	if _, err := ch.QueueDeclare(
		p.cfg.QueueName,
		true,
		false,
		false,
		false,
		QueueArgs(p.cfg.QueueName, p.cfg.MessageTTL),
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: declare queue %s: %v", ErrConnectivity, p.cfg.QueueName, err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Info("rabbitmq channel opened",
		zap.String("queue", p.cfg.QueueName),
		zap.Duration("message_ttl", p.cfg.MessageTTL),
	)
	return ch, nil
}

// Ping opens (or reuses) the channel.
func (p *RabbitProvider) Ping(_ context.Context) error {
	_, err := p.Channel()
	return err
}

// Publish sends the enrollment id as a persistent message to the work queue.
func (p *RabbitProvider) Publish(ctx context.Context, enrollmentID string) error {
	ch, err := p.Channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.cfg.QueueName, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         []byte(enrollmentID),
	}); err != nil {
		return fmt.Errorf("publish enrollment %s: %w", enrollmentID, err)
	}
	return nil
}

// Consume starts a consume session with manual acknowledgement and the
// configured prefetch. Deliveries are forwarded until ctx is done or the
// broker closes the stream.
func (p *RabbitProvider) Consume(ctx context.Context) (<-chan Delivery, Acknowledger, error) {
	ch, err := p.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(p.cfg.Prefetch, 0, false); err != nil {
		return nil, nil, fmt.Errorf("%w: qos: %v", ErrConnectivity, err)
	}
	consumerTag := fmt.Sprintf("enrollment-worker-%d", time.Now().UnixNano())
	msgs, err := ch.Consume(p.cfg.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: consume: %v", ErrConnectivity, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				if err := ch.Cancel(consumerTag, false); err != nil {
					p.logger.Debug("consumer cancel failed", zap.Error(err))
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- toDelivery(d):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, channelAcknowledger{ch: ch}, nil
}

// Close releases the connection. Safe to call repeatedly or before connecting.
func (p *RabbitProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *RabbitProvider) closeLocked() error {
	var err error
	if p.ch != nil && !p.ch.IsClosed() {
		err = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	p.conn, p.ch = nil, nil
	return err
}

type channelAcknowledger struct {
	ch *amqp.Channel
}

func (a channelAcknowledger) Ack(tag uint64) error {
	return a.ch.Ack(tag, false)
}

func (a channelAcknowledger) Nack(tag uint64, requeue bool) error {
	return a.ch.Nack(tag, false, requeue)
}

func toDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Tag:         d.DeliveryTag,
		Body:        d.Body,
		Redelivered: d.Redelivered,
		DeathCount:  deathCount(d.Headers),
	}
}

// deathCount sums the per-queue counters RabbitMQ records in x-death.
func deathCount(headers amqp.Table) int64 {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	var total int64
	for _, entry := range deaths {
		table, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		switch c := table["count"].(type) {
		case int64:
			total += c
		case int32:
			total += int64(c)
		case int:
			total += int64(c)
		}
	}
	return total
}
