// Package lifecycle coordinates graceful shutdown of the job system.
//
// The manager owns the shutdown sequence: stop claiming new jobs, wait for
// in-flight handlers to drain within a deadline, run registered flush
// hooks, and release the shared store connection. Shutdown is idempotent
// so signal handlers and deferred cleanup can both call it safely.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/jobflow/core/logger"
)

var (
	// ErrNilCloser is returned when the manager is constructed without a
	// queue closer to manage.
	ErrNilCloser = errors.New("lifecycle: queue closer is nil")

	// ErrShutdownDeadline indicates the drain did not finish in time.
	ErrShutdownDeadline = errors.New("lifecycle: shutdown deadline exceeded")
)

// QueueCloser is the registry surface the manager drives during shutdown.
type QueueCloser interface {
	CloseQueues(ctx context.Context) error
}

// FlushFunc runs during shutdown after queues drain, before the manager
// reports completion. Used to flush metrics or emit final reports.
type FlushFunc func(ctx context.Context) error

// Manager coordinates graceful shutdown of queues and ancillary resources.
type Manager struct {
	closer   QueueCloser
	deadline time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	flushes []FlushFunc

	once sync.Once
	err  error
	done chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithShutdownDeadline bounds how long Shutdown waits for queues to drain.
// Default is 30 seconds.
func WithShutdownDeadline(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.deadline = d
		}
	}
}

// WithLogger sets the logger for shutdown progress.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log.With(logger.Component("lifecycle"))
		}
	}
}

// WithFlush registers a hook that runs after queues drain. Hooks run in
// registration order; a failing hook does not stop the rest.
func WithFlush(fn FlushFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.flushes = append(m.flushes, fn)
		}
	}
}

// NewManager creates a shutdown coordinator over the queue registry.
func NewManager(closer QueueCloser, opts ...Option) (*Manager, error) {
	if closer == nil {
		return nil, ErrNilCloser
	}

	m := &Manager{
		closer:   closer,
		deadline: 30 * time.Second,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// RegisterFlush adds a flush hook after construction. Hooks registered
// once shutdown has begun are ignored.
func (m *Manager) RegisterFlush(fn FlushFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
	default:
		m.flushes = append(m.flushes, fn)
	}
}

// Shutdown drains queues, runs flush hooks, and releases resources. Safe
// to call multiple times and from multiple goroutines; every caller
// observes the outcome of the single real shutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() {
		defer close(m.done)
		m.err = m.shutdown(ctx)
	})
	<-m.done
	return m.err
}

func (m *Manager) shutdown(ctx context.Context) error {
	start := time.Now()
	m.logger.InfoContext(ctx, "shutdown started",
		slog.Duration("deadline", m.deadline))

	ctx, cancel := context.WithTimeout(ctx, m.deadline)
	defer cancel()

	var errs []error
	if err := m.closer.CloseQueues(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(ErrShutdownDeadline, err)
		}
		errs = append(errs, fmt.Errorf("failed to close queues: %w", err))
	}

	m.mu.Lock()
	flushes := m.flushes
	m.mu.Unlock()

	for _, flush := range flushes {
		if err := flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush hook failed: %w", err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		m.logger.ErrorContext(ctx, "shutdown finished with errors",
			logger.Elapsed(start), logger.Error(err))
		return err
	}

	m.logger.InfoContext(ctx, "shutdown complete", logger.Elapsed(start))
	return nil
}

// Done is closed once shutdown has finished.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Run provides errgroup compatibility: it blocks until the context is
// cancelled, then performs the shutdown sequence with a fresh context
// bounded by the shutdown deadline. Signal handling belongs to the
// application root; cancel the context from signal.NotifyContext there.
func (m *Manager) Run(ctx context.Context) func() error {
	return func() error {
		select {
		case <-ctx.Done():
		case <-m.done:
			return m.err
		}

		// The triggering context is already cancelled; the drain needs its
		// own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.deadline)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}
