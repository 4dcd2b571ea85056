package redis

import "errors"

// Domain-specific Redis errors for consistent error handling across the
// queue core. Use errors.Is() to check error types.
var (
	ErrFailedToParseConnString = errors.New("failed to parse redis connection string")
	ErrEmptyConnectionURL      = errors.New("empty redis connection URL")
	ErrConnectionFailed        = errors.New("redis connection failed")
	ErrHealthcheckFailed       = errors.New("redis healthcheck failed")
	ErrClientClosed            = errors.New("redis client is closed")
)
