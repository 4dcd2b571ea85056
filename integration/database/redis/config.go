package redis

import "time"

// Config holds connection parameters for the shared store connection.
// Direct mode uses ConnectionURL; sentinel mode is enabled when both
// SentinelMaster and SentinelAddrs are set and takes precedence.
type Config struct {
	ConnectionURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Sentinel/quorum primary discovery.
	SentinelMaster   string   `env:"REDIS_SENTINEL_MASTER"`
	SentinelAddrs    []string `env:"REDIS_SENTINEL_ADDRS" envSeparator:","`
	SentinelPassword string   `env:"REDIS_SENTINEL_PASSWORD"`
	Password         string   `env:"REDIS_PASSWORD"`
	DB               int      `env:"REDIS_DB" envDefault:"0"`

	// Bounded reconnection schedule.
	RetryAttempts    int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"500ms"`
	RetryMaxInterval time.Duration `env:"REDIS_RETRY_MAX_INTERVAL" envDefault:"5s"`
	ConnectTimeout   time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// SentinelMode reports whether the configuration targets a sentinel set
// rather than a fixed address.
func (c Config) SentinelMode() bool {
	return c.SentinelMaster != "" && len(c.SentinelAddrs) > 0
}
