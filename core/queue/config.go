package queue

import "time"

// Config holds queue system configuration. Queue names listed here form
// the known configuration GetQueue validates against; job options are the
// per-queue defaults, overridable per queue and per job.
type Config struct {
	Queues []string `env:"QUEUE_NAMES" envDefault:"default" envSeparator:","`

	// Default job options. Backoff base and cap are deliberately required
	// pieces of configuration: the retry policy has no built-in delays.
	MaxAttempts    int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase    time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"1s"`
	BackoffCap     time.Duration `env:"QUEUE_BACKOFF_CAP" envDefault:"5s"`
	HandlerTimeout time.Duration `env:"QUEUE_HANDLER_TIMEOUT" envDefault:"1m"`

	// Worker configuration.
	MaxConcurrent   int           `env:"QUEUE_MAX_CONCURRENT" envDefault:"10"`
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"250ms"`
	PromoteInterval time.Duration `env:"QUEUE_PROMOTE_INTERVAL" envDefault:"500ms"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Depth gauge sampling. The gauge is refreshed asynchronously after
	// completion events, at most once per interval, so event handling never
	// pays a store round-trip per event.
	DepthRefreshInterval time.Duration `env:"QUEUE_DEPTH_REFRESH_INTERVAL" envDefault:"1s"`
}

// DefaultConfig returns production defaults for a single default queue.
func DefaultConfig() Config {
	return Config{
		Queues:               []string{"default"},
		MaxAttempts:          3,
		BackoffBase:          time.Second,
		BackoffCap:           5 * time.Second,
		HandlerTimeout:       time.Minute,
		MaxConcurrent:        10,
		PollInterval:         250 * time.Millisecond,
		PromoteInterval:      500 * time.Millisecond,
		ShutdownTimeout:      30 * time.Second,
		DepthRefreshInterval: time.Second,
	}
}

// JobOptions are the per-queue defaults applied to enqueued jobs.
type JobOptions struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	HandlerTimeout time.Duration
}

// JobOptions derives the default job options from the configuration.
func (c Config) JobOptions() JobOptions {
	return JobOptions{
		MaxAttempts:    c.MaxAttempts,
		BackoffBase:    c.BackoffBase,
		BackoffCap:     c.BackoffCap,
		HandlerTimeout: c.HandlerTimeout,
	}
}

// merge overlays non-zero fields of other onto the receiver.
func (o JobOptions) merge(other JobOptions) JobOptions {
	if other.MaxAttempts > 0 {
		o.MaxAttempts = other.MaxAttempts
	}
	if other.BackoffBase > 0 {
		o.BackoffBase = other.BackoffBase
	}
	if other.BackoffCap > 0 {
		o.BackoffCap = other.BackoffCap
	}
	if other.HandlerTimeout > 0 {
		o.HandlerTimeout = other.HandlerTimeout
	}
	return o
}
