// Package redis provides Redis connection management for the queue core:
// client creation with bounded retry, liveness verification, sentinel-based
// failover, and a managed connection handle shared by every queue.
//
// Connect establishes a client and verifies connectivity with a ping before
// returning it. Connection attempts follow a capped exponential backoff
// schedule; exhausting the attempt bound surfaces a terminal
// ErrConnectionFailed instead of retrying forever:
//
//	cfg := redis.Config{
//		ConnectionURL: "redis://localhost:6379/0",
//		RetryAttempts: 3,
//		RetryInterval: 500 * time.Millisecond,
//	}
//	rdb, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rdb.Close()
//
// In sentinel mode (SentinelMaster and SentinelAddrs set) the client is
// created against the monitor set and re-resolves the current primary on
// connection loss, so a failover does not require a process restart:
//
//	cfg := redis.Config{
//		SentinelMaster: "mymaster",
//		SentinelAddrs:  []string{"10.0.0.1:26379", "10.0.0.2:26379"},
//	}
//
// The Client type wraps a connection with explicit status tracking
// (connecting, ready, reconnecting, closed). Get returns the ready
// connection or re-establishes one; Healthcheck probes liveness and flags
// the handle for reconnection when the probe fails.
//
// Errors are stable sentinels checked with errors.Is:
//
//   - ErrEmptyConnectionURL: no connection target configured
//   - ErrFailedToParseConnString: malformed redis:// or rediss:// URL
//   - ErrConnectionFailed: terminal, reconnect attempt bound exhausted
//   - ErrHealthcheckFailed: liveness probe failed
//   - ErrClientClosed: handle used after Close
package redis
