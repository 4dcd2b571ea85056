package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobflow/integration/database/redis"
)

func unreachableConfig() redis.Config {
	// Port 1 is reserved and refuses connections immediately on loopback.
	return redis.Config{
		ConnectionURL:    "redis://127.0.0.1:1/0",
		RetryAttempts:    3,
		RetryInterval:    time.Millisecond,
		RetryMaxInterval: 2 * time.Millisecond,
		ConnectTimeout:   5 * time.Second,
	}
}

func TestConfig_SentinelMode(t *testing.T) {
	t.Parallel()

	assert.False(t, redis.Config{}.SentinelMode())
	assert.False(t, redis.Config{SentinelMaster: "mymaster"}.SentinelMode())
	assert.True(t, redis.Config{
		SentinelMaster: "mymaster",
		SentinelAddrs:  []string{"127.0.0.1:26379"},
	}.SentinelMode())
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("empty connection URL", func(t *testing.T) {
		t.Parallel()

		_, err := redis.Connect(context.Background(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("malformed connection URL", func(t *testing.T) {
		t.Parallel()

		_, err := redis.Connect(context.Background(), redis.Config{
			ConnectionURL: "http://not-redis:6379",
		})
		assert.ErrorIs(t, err, redis.ErrFailedToParseConnString)
	})

	t.Run("terminal error after bounded attempts", func(t *testing.T) {
		t.Parallel()

		_, err := redis.Connect(context.Background(), unreachableConfig())
		require.Error(t, err)
		assert.ErrorIs(t, err, redis.ErrConnectionFailed)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		cfg := unreachableConfig()
		cfg.RetryInterval = time.Minute // force the wait between attempts

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := redis.Connect(ctx, cfg)
		assert.ErrorIs(t, err, redis.ErrConnectionFailed)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	t.Run("nil client", func(t *testing.T) {
		t.Parallel()

		check := redis.Healthcheck(nil)
		assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
	})

	t.Run("unreachable store", func(t *testing.T) {
		t.Parallel()

		client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
		defer client.Close()

		check := redis.Healthcheck(client)
		assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
	})
}
