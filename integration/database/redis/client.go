package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Status tracks the lifecycle of the managed connection handle.
// Transitions are monotonic except reconnection resetting to connecting.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusReady        Status = "ready"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
)

// DialFunc establishes a verified connection from a configuration.
type DialFunc func(context.Context, Config) (*redis.Client, error)

// Client is the managed handle around the single shared store connection.
// It establishes the connection lazily, tracks its status, and
// re-establishes it when a health probe reports the connection non-ready.
//
// Reconnection inherits the bounded schedule from Connect: a Get call that
// exhausts the attempt bound returns ErrConnectionFailed instead of
// retrying forever.
type Client struct {
	cfg    Config
	dial   DialFunc
	logger *slog.Logger

	mu     sync.Mutex
	conn   *redis.Client
	status Status
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger configures structured logging for connection lifecycle
// events.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialFunc overrides how connections are established. Intended for
// tests and custom connection policies; defaults to Connect.
func WithDialFunc(dial DialFunc) ClientOption {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// NewClient creates a managed connection handle. No connection is
// established until Connect or Get is called.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:    cfg,
		dial:   Connect,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		status: StatusConnecting,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect establishes the connection if needed. It is idempotent: an
// existing ready connection is returned as-is.
func (c *Client) Connect(ctx context.Context) (*redis.Client, error) {
	return c.Get(ctx)
}

// Get returns a ready connection, establishing or re-establishing one when
// the handle is not ready. Exhausting the bounded reconnect schedule
// surfaces a terminal ErrConnectionFailed.
func (c *Client) Get(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusClosed:
		return nil, ErrClientClosed
	case StatusReady:
		return c.conn, nil
	}

	conn, err := c.dial(ctx, c.cfg)
	if err != nil {
		c.logger.ErrorContext(ctx, "store connection attempt failed",
			slog.String("status", string(c.status)),
			slog.String("error", err.Error()))
		return nil, err
	}

	c.conn = conn
	c.status = StatusReady
	c.logger.InfoContext(ctx, "store connection ready",
		slog.Bool("sentinel", c.cfg.SentinelMode()))
	return conn, nil
}

// Healthcheck probes the current connection. A failed probe marks the
// handle for reconnection so the next Get re-establishes the connection —
// in sentinel mode that re-resolves the current primary from the monitor
// set rather than retrying a fixed address.
func (c *Client) Healthcheck(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if status == StatusClosed {
		return errors.Join(ErrHealthcheckFailed, ErrClientClosed)
	}
	if conn == nil {
		return errors.Join(ErrHealthcheckFailed, errors.New("not connected"))
	}

	if err := conn.Ping(ctx).Err(); err != nil {
		c.mu.Lock()
		if c.status == StatusReady {
			c.status = StatusReconnecting
		}
		c.mu.Unlock()

		c.logger.WarnContext(ctx, "store connection lost, reconnect scheduled",
			slog.String("error", err.Error()))
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Status returns the current handle status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close releases the connection. The handle cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusClosed {
		return nil
	}
	c.status = StatusClosed

	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}
