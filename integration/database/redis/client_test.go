package redis_test

import (
	"context"
	"sync/atomic"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobflow/integration/database/redis"
)

// lazyConn returns a client that is constructed without dialing; go-redis
// connects on first command, which the tests never issue.
func lazyConn() *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
}

func TestClient_Get(t *testing.T) {
	t.Parallel()

	t.Run("starts in connecting status", func(t *testing.T) {
		t.Parallel()

		client := redis.NewClient(redis.Config{})
		assert.Equal(t, redis.StatusConnecting, client.Status())
	})

	t.Run("dials once and memoizes ready connection", func(t *testing.T) {
		t.Parallel()

		var dials atomic.Int32
		client := redis.NewClient(redis.Config{}, redis.WithDialFunc(
			func(ctx context.Context, cfg redis.Config) (*goredis.Client, error) {
				dials.Add(1)
				return lazyConn(), nil
			},
		))

		first, err := client.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, redis.StatusReady, client.Status())

		second, err := client.Get(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, int32(1), dials.Load())
	})

	t.Run("terminal dial failure propagates", func(t *testing.T) {
		t.Parallel()

		client := redis.NewClient(unreachableConfig())

		_, err := client.Get(context.Background())
		assert.ErrorIs(t, err, redis.ErrConnectionFailed)
		assert.Equal(t, redis.StatusConnecting, client.Status())
	})

	t.Run("failed healthcheck triggers reconnect on next get", func(t *testing.T) {
		t.Parallel()

		var dials atomic.Int32
		client := redis.NewClient(redis.Config{
			SentinelMaster: "mymaster",
			SentinelAddrs:  []string{"127.0.0.1:26379"},
		}, redis.WithDialFunc(
			func(ctx context.Context, cfg redis.Config) (*goredis.Client, error) {
				dials.Add(1)
				return lazyConn(), nil
			},
		))

		_, err := client.Get(context.Background())
		require.NoError(t, err)
		require.Equal(t, int32(1), dials.Load())

		// The lazy connection points at a dead address, so the probe fails
		// and the handle resets for primary re-resolution.
		err = client.Healthcheck(context.Background())
		assert.ErrorIs(t, err, redis.ErrHealthcheckFailed)
		assert.Equal(t, redis.StatusReconnecting, client.Status())

		_, err = client.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), dials.Load())
		assert.Equal(t, redis.StatusReady, client.Status())
	})
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(redis.Config{}, redis.WithDialFunc(
		func(ctx context.Context, cfg redis.Config) (*goredis.Client, error) {
			return lazyConn(), nil
		},
	))

	_, err := client.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.Equal(t, redis.StatusClosed, client.Status())

	_, err = client.Get(context.Background())
	assert.ErrorIs(t, err, redis.ErrClientClosed)

	assert.ErrorIs(t, client.Healthcheck(context.Background()), redis.ErrClientClosed)

	// Close is idempotent.
	assert.NoError(t, client.Close())
}
