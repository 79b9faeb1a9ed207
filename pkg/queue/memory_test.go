package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollhub/enrollment-service/pkg/config"
)

func rabbitTestConfig() config.RabbitConfig {
	return config.RabbitConfig{URI: "amqp://invalid", QueueName: "enrollments", MessageTTL: time.Minute}
}

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery stream closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return Delivery{}
}

func TestMemoryBrokerAck(t *testing.T) {
	b := NewMemoryBroker("enrollments", MemoryConfig{})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, ack, err := b.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "id-1"))
	d := receive(t, msgs)
	assert.Equal(t, "id-1", string(d.Body))
	assert.Equal(t, 1, b.Inflight())

	require.NoError(t, ack.Ack(d.Tag))
	assert.Zero(t, b.Inflight())
	assert.Error(t, ack.Ack(d.Tag))
}

func TestMemoryBrokerNackRequeue(t *testing.T) {
	b := NewMemoryBroker("enrollments", MemoryConfig{})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, ack, err := b.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "id-1"))
	first := receive(t, msgs)
	require.NoError(t, ack.Nack(first.Tag, true))

	again := receive(t, msgs)
	assert.True(t, again.Redelivered)
	assert.Zero(t, again.DeathCount)
	assert.NotEqual(t, first.Tag, again.Tag)
}

func TestMemoryBrokerDeadLetterAfterTTL(t *testing.T) {
	ttl := 50 * time.Millisecond
	b := NewMemoryBroker("enrollments", MemoryConfig{MessageTTL: ttl})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, ack, err := b.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "id-1"))
	first := receive(t, msgs)

	nackedAt := time.Now()
	require.NoError(t, ack.Nack(first.Tag, false))
	assert.Zero(t, b.Inflight())

	again := receive(t, msgs)
	assert.GreaterOrEqual(t, time.Since(nackedAt), ttl)
	assert.Equal(t, "id-1", string(again.Body))
	assert.Equal(t, int64(1), again.DeathCount)
	assert.False(t, again.Redelivered)
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker("enrollments", MemoryConfig{MessageTTL: time.Hour})

	ctx := context.Background()
	msgs, ack, err := b.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "id-1"))
	d := receive(t, msgs)
	require.NoError(t, ack.Nack(d.Tag, false))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, open := <-msgs
	assert.False(t, open)
	assert.ErrorIs(t, b.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, "id-2"), ErrClosed)
	_, _, err = b.Consume(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBrokerSessionEndsWithContext(t *testing.T) {
	b := NewMemoryBroker("enrollments", MemoryConfig{})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	msgs, _, err := b.Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-msgs:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	require.NoError(t, b.Ping(context.Background()))
}
