package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Connect creates a Redis client and verifies connectivity with a ping
// before returning it. Attempts follow a capped exponential backoff
// schedule bounded by cfg.RetryAttempts; exhausting the bound returns a
// terminal ErrConnectionFailed. The whole process is bounded by
// cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	schedule := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		schedule.InitialInterval = cfg.RetryInterval
	}
	if cfg.RetryMaxInterval > 0 {
		schedule.MaxInterval = cfg.RetryMaxInterval
	}
	schedule.Reset()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		} else {
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, errors.Join(ctx.Err(), lastErr))
		case <-time.After(schedule.NextBackOff()):
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, attempts, lastErr)
}

// Healthcheck returns a liveness probe suitable for readiness endpoints.
func Healthcheck(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return ErrHealthcheckFailed
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// newClient builds an unverified client from the configuration. Sentinel
// mode creates a failover client that re-resolves the current primary from
// the monitor set on connection loss.
func newClient(cfg Config) (*redis.Client, error) {
	if cfg.SentinelMode() {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.SentinelMaster,
			SentinelAddrs:    cfg.SentinelAddrs,
			SentinelPassword: cfg.SentinelPassword,
			Password:         cfg.Password,
			DB:               cfg.DB,
		}), nil
	}

	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToParseConnString, err)
	}
	return redis.NewClient(opts), nil
}
