package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobflow/core/logger"
	"github.com/dmitrymomot/jobflow/core/metrics"
)

// Registry owns the set of named queues and the shared store connection.
// Queue names come from configuration; GetQueue validates against that set
// and memoizes instances, so callers across the application always receive
// the same Queue for the same name.
type Registry struct {
	storage   Storage
	cfg       Config
	collector *metrics.Collector
	logger    *slog.Logger

	mu     sync.RWMutex
	queues map[string]*Queue
	known  map[string]JobOptions
	closed bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger propagated to every queue.
func WithRegistryLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.logger = log
		}
	}
}

// WithCollector sets the metrics collector shared by every queue.
func WithCollector(c *metrics.Collector) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.collector = c
		}
	}
}

// WithQueueOptions overrides the default job options for a single named
// queue. The name is added to the known set.
func WithQueueOptions(name string, opts JobOptions) RegistryOption {
	return func(r *Registry) {
		if name != "" {
			r.known[name] = r.cfg.JobOptions().merge(opts)
		}
	}
}

// NewRegistry creates a registry over the shared storage. The configured
// queue names become the known set; asking for any other name is a
// configuration error.
func NewRegistry(storage Storage, cfg Config, opts ...RegistryOption) (*Registry, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}

	r := &Registry{
		storage:   storage,
		cfg:       cfg,
		collector: metrics.NewCollector(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		queues:    make(map[string]*Queue),
		known:     make(map[string]JobOptions),
	}

	for _, name := range cfg.Queues {
		if name != "" {
			r.known[name] = cfg.JobOptions()
		}
	}

	for _, opt := range opts {
		opt(r)
	}

	if len(r.known) == 0 {
		return nil, fmt.Errorf("queue: no queues configured")
	}

	return r, nil
}

// GetQueue returns the queue for a configured name, creating it on first
// use. Unknown names fail with ErrUnknownQueue; the caller's configuration
// is wrong and retrying cannot fix it.
func (r *Registry) GetQueue(name string) (*Queue, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if q, ok := r.queues[name]; ok {
		r.mu.RUnlock()
		return q, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	// Another caller may have created it between the read and write locks.
	if q, ok := r.queues[name]; ok {
		return q, nil
	}

	opts, ok := r.known[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}

	q, err := newQueue(name, r.storage, r.collector, r.cfg, opts, r.logger)
	if err != nil {
		return nil, err
	}
	r.queues[name] = q

	// The registry observes the full event set of every queue it creates,
	// so lifecycle transitions are logged even with no application
	// subscriber attached.
	events, _ := q.Subscribe()
	go r.drainEvents(events)

	r.logger.Info("queue created", logger.Queue(name))
	return q, nil
}

// drainEvents logs queue events until the queue shuts down and closes the
// channel.
func (r *Registry) drainEvents(events <-chan Event) {
	for ev := range events {
		attrs := []any{
			slog.String("event", string(ev.Kind)),
			logger.Queue(ev.Queue),
		}
		if ev.Job != nil {
			attrs = append(attrs, logger.JobID(ev.Job.ID))
		}
		if ev.Err != nil {
			attrs = append(attrs, logger.Error(ev.Err))
		}
		r.logger.Debug("queue event", attrs...)
	}
}

// Queues returns the currently instantiated queues.
func (r *Registry) Queues() []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}

// KnownQueues returns the configured queue names.
func (r *Registry) KnownQueues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.known))
	for name := range r.known {
		names = append(names, name)
	}
	return names
}

// Run starts every instantiated queue under a single errgroup and blocks
// until the context is cancelled or a queue fails. Queues created after
// Run begins must be started individually.
func (r *Registry) Run(ctx context.Context) error {
	queues := r.Queues()
	if len(queues) == 0 {
		return fmt.Errorf("queue: no queues instantiated")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		g.Go(q.Run(ctx))
	}
	return g.Wait()
}

// Metrics returns a metrics snapshot with queue depth gauges refreshed
// from the store, so the report reflects live occupancy rather than the
// last debounced sample.
func (r *Registry) Metrics(ctx context.Context) (metrics.Snapshot, error) {
	for _, q := range r.Queues() {
		depth, err := r.storage.Depth(ctx, q.Name())
		if err != nil {
			return metrics.Snapshot{}, fmt.Errorf("failed to read depth of %q: %w", q.Name(), err)
		}
		r.collector.SetQueueDepth(q.Name(), depth.Current())
	}
	return r.collector.Snapshot(), nil
}

// Collector exposes the shared metrics collector.
func (r *Registry) Collector() *metrics.Collector { return r.collector }

// Healthcheck verifies every instantiated queue is processing.
func (r *Registry) Healthcheck(ctx context.Context) error {
	var errs []error
	for _, q := range r.Queues() {
		if err := q.Healthcheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue %q: %w", q.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CloseQueues shuts down all instantiated queues and then the shared
// storage. All queues are paused first so none keeps claiming while
// siblings drain; closes then proceed independently, and one queue failing
// to drain does not prevent the others from closing. Idempotent.
func (r *Registry) CloseQueues(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	queues := maps.Clone(r.queues)
	r.queues = make(map[string]*Queue)
	r.mu.Unlock()

	for _, q := range queues {
		q.Pause()
	}

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		errs   []error
		closed = make(chan struct{})
	)
	for name, q := range queues {
		wg.Add(1)
		go func(name string, q *Queue) {
			defer wg.Done()
			if err := q.Close(); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("queue %q: %w", name, err))
				errMu.Unlock()
			}
		}(name, q)
	}
	go func() {
		wg.Wait()
		close(closed)
	}()

	select {
	case <-closed:
	case <-ctx.Done():
		errMu.Lock()
		errs = append(errs, fmt.Errorf("queue: close interrupted: %w", ctx.Err()))
		errMu.Unlock()
	}

	if err := r.storage.Close(); err != nil {
		errMu.Lock()
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		errMu.Unlock()
	}

	errMu.Lock()
	defer errMu.Unlock()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	r.logger.Info("all queues closed")
	return nil
}
