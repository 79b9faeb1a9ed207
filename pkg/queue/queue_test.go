package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerStub struct {
	failures int
	calls    int
}

func (p *pingerStub) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestConnectRetriesUntilReachable(t *testing.T) {
	p := &pingerStub{failures: 2}
	require.NoError(t, Connect(context.Background(), p, 5, 0, nil))
	assert.Equal(t, 3, p.calls)
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	p := &pingerStub{failures: 10}
	err := Connect(context.Background(), p, 5, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempts")
	assert.Equal(t, 5, p.calls)
}

func TestConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &pingerStub{failures: 10}
	err := Connect(ctx, p, 5, time.Minute, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestQueueArgsDeadLetterToSelf(t *testing.T) {
	args := QueueArgs("enrollments", 5*time.Minute)
	assert.Equal(t, "", args["x-dead-letter-exchange"])
	assert.Equal(t, "enrollments", args["x-dead-letter-routing-key"])
	assert.Equal(t, int64(300000), args["x-message-ttl"])
}

func TestDeathCount(t *testing.T) {
	assert.Zero(t, deathCount(nil))
	assert.Zero(t, deathCount(amqp.Table{"x-death": "garbage"}))

	headers := amqp.Table{"x-death": []interface{}{
		amqp.Table{"count": int64(2), "queue": "enrollments"},
		amqp.Table{"count": int32(1), "queue": "other"},
		"ignored",
	}}
	assert.Equal(t, int64(3), deathCount(headers))
}

func TestToDelivery(t *testing.T) {
	d := toDelivery(amqp.Delivery{
		DeliveryTag: 7,
		Body:        []byte("abc"),
		Redelivered: true,
		Headers:     amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(1)}}},
	})
	assert.Equal(t, Delivery{Tag: 7, Body: []byte("abc"), Redelivered: true, DeathCount: 1}, d)
}

func TestRabbitProviderDialFailure(t *testing.T) {
	p := NewRabbitProvider(rabbitTestConfig(), nil)
	p.dial = func(string) (*amqp.Connection, error) { return nil, errors.New("refused") }

	err := p.Ping(context.Background())
	require.ErrorIs(t, err, ErrConnectivity)
	require.NoError(t, p.Close())
}
