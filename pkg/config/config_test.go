package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "enrollments", cfg.Rabbit.QueueName)
	assert.Equal(t, 5*time.Minute, cfg.Rabbit.MessageTTL)
	assert.Equal(t, 1, cfg.Rabbit.Prefetch)
	assert.Equal(t, 5, cfg.Rabbit.ConnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.Rabbit.ConnectBaseDelay)
	assert.Equal(t, 5, cfg.AgeGroups.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.AgeGroups.BackoffStep)
	assert.Equal(t, 2*time.Second, cfg.Processor.Delay)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MONGO")
	t.Setenv("RABBIT_QUEUE_NAME", "enrollments.test")
	t.Setenv("RABBIT_MESSAGE_TTL", "90s")
	t.Setenv("PROCESSOR_DELAY", "0s")
	t.Setenv("AGE_GROUPS_BACKOFF_STEP", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMongo, cfg.StoreDriver)
	assert.Equal(t, "enrollments.test", cfg.Rabbit.QueueName)
	assert.Equal(t, 90*time.Second, cfg.Rabbit.MessageTTL)
	assert.Equal(t, time.Duration(0), cfg.Processor.Delay)
	assert.Equal(t, 3*time.Second, cfg.AgeGroups.BackoffStep)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoadRejectsUnknownStoreDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}
