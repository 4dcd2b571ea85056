package breaker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State identifies the breaker position in its lifecycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds circuit breaker parameters. All thresholds are explicit;
// New rejects configurations that would make the breaker inert.
type Config struct {
	CallTimeout              time.Duration `env:"BREAKER_CALL_TIMEOUT" envDefault:"5s"`
	ErrorThresholdPercentage int           `env:"BREAKER_ERROR_THRESHOLD" envDefault:"50"`
	ResetTimeout             time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`
	WindowSize               time.Duration `env:"BREAKER_WINDOW_SIZE" envDefault:"10s"`
	MinRequests              int           `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
}

// DefaultConfig returns breaker parameters suitable for protecting a Redis
// connection in production.
func DefaultConfig() Config {
	return Config{
		CallTimeout:              5 * time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             30 * time.Second,
		WindowSize:               10 * time.Second,
		MinRequests:              5,
	}
}

// Counts is a point-in-time view of the rolling window.
type Counts struct {
	Successes int
	Failures  int
}

// Total returns the number of calls observed in the window.
func (c Counts) Total() int { return c.Successes + c.Failures }

// FailurePercentage returns the failure share of the window, 0-100.
func (c Counts) FailurePercentage() int {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return c.Failures * 100 / total
}

// bucket accumulates outcomes for a single second of the rolling window.
type bucket struct {
	sec       int64
	successes int
	failures  int
}

// Operation is a call protected by the breaker.
type Operation func(ctx context.Context) error

// CircuitBreaker wraps calls against a failing dependency and fails fast
// once the failure percentage over the rolling window exceeds the threshold.
type CircuitBreaker struct {
	cfg    Config
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	buckets        []bucket
	openedAt       time.Time
	lastTransition time.Time
	trialInFlight  bool

	onStateChange func(from, to State)

	now func() time.Time
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithLogger configures structured logging for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// WithOnStateChange registers a callback invoked on every state transition.
// The callback runs outside the breaker lock and must not block for long.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.onStateChange = fn
		}
	}
}

// New creates a closed CircuitBreaker with the given configuration.
func New(cfg Config, opts ...Option) (*CircuitBreaker, error) {
	if cfg.ErrorThresholdPercentage < 1 || cfg.ErrorThresholdPercentage > 100 {
		return nil, ErrInvalidThreshold
	}
	if cfg.ResetTimeout <= 0 {
		return nil, ErrInvalidResetTimeout
	}
	if cfg.CallTimeout <= 0 {
		return nil, ErrInvalidCallTimeout
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10 * time.Second
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}

	cb := &CircuitBreaker{
		cfg:            cfg,
		state:          StateClosed,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
		lastTransition: time.Now(),
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb, nil
}

// Do executes op under the breaker. When the breaker is open, Do returns
// ErrCircuitOpen immediately without invoking op. The call runs under the
// configured CallTimeout; a timed-out call counts as a failure.
func (cb *CircuitBreaker) Do(ctx context.Context, op Operation) error {
	if op == nil {
		return ErrNilOperation
	}

	trial, err := cb.allow()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.cfg.CallTimeout)
	defer cancel()

	opErr := op(callCtx)
	cb.record(opErr == nil, trial)
	return opErr
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// WindowCounts returns the outcome counts currently in the rolling window.
func (cb *CircuitBreaker) WindowCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.countsLocked(cb.now())
}

// allow decides whether a call may proceed and whether it is the half-open
// trial call. Exactly one trial is in flight while half-open.
func (cb *CircuitBreaker) allow() (trial bool, err error) {
	cb.mu.Lock()

	now := cb.now()
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return false, nil

	case StateOpen:
		if now.Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		notify := cb.transitionLocked(StateHalfOpen, now)
		cb.trialInFlight = true
		cb.mu.Unlock()
		notify()
		return true, nil

	case StateHalfOpen:
		if cb.trialInFlight {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.trialInFlight = true
		cb.mu.Unlock()
		return true, nil
	}

	cb.mu.Unlock()
	return false, nil
}

// record registers a call outcome and applies state transitions.
func (cb *CircuitBreaker) record(success, trial bool) {
	cb.mu.Lock()

	now := cb.now()
	notify := func() {}

	if trial {
		cb.trialInFlight = false
		if success {
			cb.buckets = nil
			notify = cb.transitionLocked(StateClosed, now)
		} else {
			cb.openedAt = now
			notify = cb.transitionLocked(StateOpen, now)
		}
		cb.mu.Unlock()
		notify()
		return
	}

	// Outcomes recorded after the breaker left the closed state belong to
	// calls admitted earlier; they must not disturb the current state.
	if cb.state != StateClosed {
		cb.mu.Unlock()
		return
	}

	cb.observeLocked(success, now)

	counts := cb.countsLocked(now)
	if counts.Total() >= cb.cfg.MinRequests &&
		counts.FailurePercentage() > cb.cfg.ErrorThresholdPercentage {
		cb.openedAt = now
		cb.buckets = nil
		notify = cb.transitionLocked(StateOpen, now)
	}

	cb.mu.Unlock()
	notify()
}

// observeLocked appends an outcome to the current one-second bucket.
func (cb *CircuitBreaker) observeLocked(success bool, now time.Time) {
	sec := now.Unix()
	if n := len(cb.buckets); n == 0 || cb.buckets[n-1].sec != sec {
		cb.buckets = append(cb.buckets, bucket{sec: sec})
	}
	b := &cb.buckets[len(cb.buckets)-1]
	if success {
		b.successes++
	} else {
		b.failures++
	}
}

// countsLocked sums the window, dropping buckets that have aged out.
func (cb *CircuitBreaker) countsLocked(now time.Time) Counts {
	oldest := now.Add(-cb.cfg.WindowSize).Unix()

	keep := cb.buckets[:0]
	var c Counts
	for _, b := range cb.buckets {
		if b.sec < oldest {
			continue
		}
		keep = append(keep, b)
		c.Successes += b.successes
		c.Failures += b.failures
	}
	cb.buckets = keep
	return c
}

// transitionLocked switches state and returns a function that performs
// logging and the state-change callback outside the lock.
func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	cb.lastTransition = now

	logger := cb.logger
	callback := cb.onStateChange
	return func() {
		logger.Info("circuit breaker state changed",
			slog.String("from", string(from)),
			slog.String("to", string(to)))
		if callback != nil {
			callback(from, to)
		}
	}
}
