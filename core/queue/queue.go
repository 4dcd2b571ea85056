package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/jobflow/core/breaker"
	"github.com/dmitrymomot/jobflow/core/logger"
	"github.com/dmitrymomot/jobflow/core/metrics"
	"github.com/dmitrymomot/jobflow/core/retry"
	"github.com/dmitrymomot/jobflow/pkg/async"
)

// Queue is a named durable job queue bound to the shared store connection.
// Queues are created through Registry.GetQueue and memoized; constructing
// one directly is not supported.
type Queue struct {
	name      string
	storage   Storage
	opts      JobOptions
	policy    retry.Policy
	collector *metrics.Collector
	events    *broadcaster
	logger    *slog.Logger

	pollInterval         time.Duration
	promoteInterval      time.Duration
	shutdownTimeout      time.Duration
	depthRefreshInterval time.Duration
	maxConcurrent        int

	mu      sync.RWMutex
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	sem     chan struct{}
	wg      sync.WaitGroup

	paused    atomic.Bool
	closed    atomic.Bool
	hadJobs   atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32

	lastDepthRefresh atomic.Int64 // unix nanos of the last gauge refresh
}

// QueueStats provides observability counters for monitoring and tests.
type QueueStats struct {
	Processed  int64
	Failed     int64
	ActiveJobs int32
	IsRunning  bool
}

func newQueue(name string, storage Storage, collector *metrics.Collector, cfg Config, opts JobOptions, log *slog.Logger) (*Queue, error) {
	policy, err := retry.NewPolicy(opts.BackoffBase, opts.BackoffCap)
	if err != nil {
		return nil, fmt.Errorf("queue %q: %w", name, err)
	}

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Queue{
		name:                 name,
		storage:              storage,
		opts:                 opts,
		policy:               policy,
		collector:            collector,
		events:               newBroadcaster(name, 0),
		logger:               log.With(logger.Component("queue"), logger.Queue(name)),
		pollInterval:         cfg.PollInterval,
		promoteInterval:      cfg.PromoteInterval,
		shutdownTimeout:      cfg.ShutdownTimeout,
		depthRefreshInterval: cfg.DepthRefreshInterval,
		maxConcurrent:        cfg.MaxConcurrent,
		sem:                  make(chan struct{}, max(cfg.MaxConcurrent, 1)),
	}, nil
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Options returns the effective per-queue job options.
func (q *Queue) Options() JobOptions { return q.opts }

// EnqueueOption overrides job construction for a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	delay       time.Duration
	maxAttempts int
}

// WithDelay schedules the job to become eligible only after d elapses.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithMaxAttempts overrides the queue default attempt budget for this job.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Enqueue validates the payload against its schema and persists a new job.
// Validation failures surface immediately as a non-retryable
// *ValidationError; nothing is written to the store.
func (q *Queue) Enqueue(ctx context.Context, payload Payload, opts ...EnqueueOption) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}

	options := &enqueueOptions{maxAttempts: q.opts.MaxAttempts}
	for _, opt := range opts {
		opt(options)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{JobType: payload.JobType(), Err: err}
	}

	job := &Job{
		ID:          uuid.New(),
		Queue:       q.name,
		Type:        payload.JobType(),
		Payload:     raw,
		Status:      JobStatusWaiting,
		MaxAttempts: options.maxAttempts,
		CreatedAt:   time.Now(),
	}

	if options.delay > 0 {
		job.Status = JobStatusDelayed
		job.EligibleAt = time.Now().Add(options.delay)
		err = q.storage.EnqueueDelayed(ctx, job)
	} else {
		err = q.storage.Enqueue(ctx, job)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job on %q: %w", q.name, err)
	}

	q.events.publish(Event{Kind: EventWaiting, Job: job})
	q.logger.DebugContext(ctx, "job enqueued",
		logger.JobID(job.ID), logger.JobType(string(job.Type)))
	return job, nil
}

// Process registers the handler for this queue. Exactly one handler is
// registered per queue; a second registration replaces the first.
func (q *Queue) Process(handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	return nil
}

// Start begins claiming and processing jobs. It blocks until the context
// is cancelled or Close is called. A handler must be registered first.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.cancel != nil {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	if q.handler == nil {
		q.mu.Unlock()
		return ErrNoHandler
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	runCtx := q.ctx
	q.mu.Unlock()

	q.logger.InfoContext(runCtx, "queue started",
		slog.Int("max_concurrent", q.maxConcurrent))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.promoteLoop(runCtx)
	}()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case <-ticker.C:
			if q.paused.Load() {
				continue
			}
			select {
			case q.sem <- struct{}{}:
				// Verify the queue is still running and join the waitgroup
				// atomically, or Close might wait on an incomplete count.
				q.mu.RLock()
				if q.cancel == nil {
					q.mu.RUnlock()
					<-q.sem
					return nil
				}
				q.wg.Add(1)
				q.mu.RUnlock()

				go func() {
					defer q.wg.Done()
					defer func() { <-q.sem }()
					q.claimAndProcess(runCtx)
				}()
			default:
				// All worker slots busy; skip this tick.
			}
		}
	}
}

// Run provides errgroup compatibility: it starts the queue, monitors
// context cancellation, and closes gracefully when the context ends.
func (q *Queue) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- q.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = q.Close()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// promoteLoop periodically moves due delayed jobs back into the waiting
// list and recovers stalled active jobs whose lease expired.
func (q *Queue) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(q.promoteInterval)
	defer ticker.Stop()

	lease := q.opts.HandlerTimeout + q.promoteInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.storage.PromoteDue(ctx, q.name, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.WarnContext(ctx, "failed to promote delayed jobs", logger.Error(err))
			}

			stalled, err := q.storage.RecoverStalled(ctx, q.name, lease)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					q.logger.WarnContext(ctx, "failed to recover stalled jobs", logger.Error(err))
				}
				continue
			}
			for _, job := range stalled {
				q.logger.WarnContext(ctx, "stalled job recovered", logger.JobID(job.ID))
				q.events.publish(Event{Kind: EventStalled, Job: job})
			}
		}
	}
}

// claimAndProcess claims the next waiting job and executes it.
func (q *Queue) claimAndProcess(ctx context.Context) {
	// The blocking window stays below the breaker call timeout so a quiet
	// queue is not mistaken for a store failure.
	job, err := q.storage.Dequeue(ctx, q.name, q.pollInterval)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoJob):
			if q.hadJobs.Swap(false) {
				q.events.publish(Event{Kind: EventDrained})
			}
		case errors.Is(err, breaker.ErrCircuitOpen):
			// Store considered unavailable; the poll ticker paces retries.
			q.logger.WarnContext(ctx, "store unavailable, claim skipped", logger.Error(err))
		case errors.Is(err, context.Canceled):
		default:
			q.logger.ErrorContext(ctx, "failed to claim job", logger.Error(err))
		}
		return
	}

	q.hadJobs.Store(true)
	q.processJob(job)
}

// processJob executes one attempt. Attempt accounting happens here: the
// claim consumes one unit of the job's attempt budget, so AttemptsMade
// never exceeds MaxAttempts.
func (q *Queue) processJob(job *Job) {
	job.AttemptsMade++
	job.Status = JobStatusActive

	q.active.Add(1)
	defer q.active.Add(-1)

	q.events.publish(Event{Kind: EventActive, Job: job})

	start := time.Now()

	// A panicking handler must not take down the worker; treat it as a
	// failed attempt with retry eligibility.
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorContext(context.Background(), "handler panicked",
				logger.JobID(job.ID), slog.Any("panic", r))
			q.handleFailure(job, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	q.mu.RLock()
	handler := q.handler
	q.mu.RUnlock()

	// Independent context: queue shutdown does not interrupt a running
	// handler, which gets its full configured timeout to finish.
	hctx, cancel := context.WithTimeout(context.Background(), q.opts.HandlerTimeout)
	defer cancel()

	err := handler(hctx, job)
	duration := time.Since(start)

	if err != nil {
		q.handleFailure(job, err, duration)
		return
	}
	q.handleSuccess(job, duration)
}

func (q *Queue) handleSuccess(job *Job, duration time.Duration) {
	// Bookkeeping runs on a fresh context so a draining queue still
	// records outcomes of in-flight jobs.
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.HandlerTimeout)
	defer cancel()

	job.Status = JobStatusCompleted
	if err := q.storage.Complete(ctx, job); err != nil {
		q.logger.ErrorContext(ctx, "failed to mark job completed",
			logger.JobID(job.ID), logger.Error(err))
		return
	}

	q.processed.Add(1)
	q.collector.JobProcessed(q.name, string(job.Type))
	q.collector.ObserveDuration(q.name, string(job.Type), duration)
	q.events.publish(Event{Kind: EventCompleted, Job: job})
	q.refreshDepth()

	q.logger.InfoContext(ctx, "job completed",
		logger.JobID(job.ID),
		logger.JobType(string(job.Type)),
		logger.Attempt(job.AttemptsMade),
		logger.Duration(duration))
}

func (q *Queue) handleFailure(job *Job, cause error, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.HandlerTimeout)
	defer cancel()

	execErr := &ExecutionError{
		JobID:   job.ID,
		Queue:   q.name,
		JobType: job.Type,
		Attempt: job.AttemptsMade,
		Err:     cause,
	}
	job.LastError = execErr.Error()

	decision := q.policy.Decide(job.AttemptsMade, job.MaxAttempts, execErr)
	if decision.Retry {
		job.Status = JobStatusDelayed
		job.EligibleAt = time.Now().Add(decision.Delay)
		if err := q.storage.EnqueueDelayed(ctx, job); err != nil {
			q.logger.ErrorContext(ctx, "failed to schedule retry",
				logger.JobID(job.ID), logger.Error(err))
		}

		q.events.publish(Event{Kind: EventError, Job: job, Err: execErr})
		q.logger.WarnContext(ctx, "job attempt failed, retry scheduled",
			logger.JobID(job.ID),
			logger.Attempt(job.AttemptsMade),
			slog.Duration("delay", decision.Delay),
			logger.Error(cause))
		return
	}

	job.Status = JobStatusFailed
	if err := q.storage.Fail(ctx, job); err != nil {
		q.logger.ErrorContext(ctx, "failed to mark job failed",
			logger.JobID(job.ID), logger.Error(err))
	}

	q.failed.Add(1)
	q.collector.JobFailed(q.name, string(job.Type), errorKind(cause))
	q.events.publish(Event{Kind: EventFailed, Job: job, Err: execErr})
	q.refreshDepth()

	q.logger.ErrorContext(ctx, "job failed terminally",
		logger.JobID(job.ID),
		logger.JobType(string(job.Type)),
		logger.Attempt(job.AttemptsMade),
		logger.Duration(duration),
		logger.Error(cause))
}

// errorKind classifies a failure cause for the failed counter.
func errorKind(err error) string {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, breaker.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "execution"
	}
}

// refreshDepth updates the queue-depth gauge asynchronously, at most once
// per configured interval, so event handling never blocks on a store
// round-trip.
func (q *Queue) refreshDepth() {
	interval := q.depthRefreshInterval
	if interval <= 0 {
		interval = time.Second
	}

	now := time.Now().UnixNano()
	last := q.lastDepthRefresh.Load()
	if now-last < int64(interval) {
		return
	}
	if !q.lastDepthRefresh.CompareAndSwap(last, now) {
		return
	}

	async.Exec(context.Background(), q.name, func(ctx context.Context, name string) error {
		ctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		depth, err := q.storage.Depth(ctx, name)
		if err != nil {
			return err
		}
		q.collector.SetQueueDepth(name, depth.Current())
		return nil
	})
}

// Progress publishes a handler-reported progress event for the job.
func (q *Queue) Progress(job *Job, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	q.events.publish(Event{Kind: EventProgress, Job: job, Progress: percent})
}

// Remove deletes a waiting or delayed job before it executes.
func (q *Queue) Remove(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := q.storage.Remove(ctx, q.name, id)
	if err != nil {
		return nil, err
	}
	q.events.publish(Event{Kind: EventRemoved, Job: job})
	return job, nil
}

// Clean purges terminally failed jobs from the store.
func (q *Queue) Clean(ctx context.Context) (int, error) {
	n, err := q.storage.Clean(ctx, q.name)
	if err != nil {
		return 0, err
	}
	q.events.publish(Event{Kind: EventCleaned, Count: n})
	return n, nil
}

// Subscribe returns a channel of queue lifecycle events and an unsubscribe
// function. Slow subscribers lose events once their buffer fills; job
// processing never blocks on consumers.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	return q.events.subscribe()
}

// Pause stops claiming new jobs. In-flight jobs continue; Enqueue still
// accepts work for later processing.
func (q *Queue) Pause() { q.paused.Store(true) }

// Resume reverses Pause.
func (q *Queue) Resume() { q.paused.Store(false) }

// Paused reports whether claiming is paused.
func (q *Queue) Paused() bool { return q.paused.Load() }

// Close pauses intake, stops the processing loops, and waits up to the
// shutdown timeout for in-flight jobs to finish. The shared store
// connection is left open; the registry owns it.
func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	q.paused.Store(true)

	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	defer q.events.close()

	select {
	case <-done:
		q.logger.Info("queue closed")
		return nil
	case <-time.After(q.shutdownTimeout):
		q.logger.Warn("queue close timed out, in-flight jobs may be abandoned",
			slog.Duration("timeout", q.shutdownTimeout))
		return fmt.Errorf("%w: queue %q after %s", ErrShutdownTimeout, q.name, q.shutdownTimeout)
	}
}

// Stats returns current counters for observability and tests.
func (q *Queue) Stats() QueueStats {
	q.mu.RLock()
	isRunning := q.cancel != nil
	q.mu.RUnlock()

	return QueueStats{
		Processed:  q.processed.Load(),
		Failed:     q.failed.Load(),
		ActiveJobs: q.active.Load(),
		IsRunning:  isRunning,
	}
}

// Healthcheck validates that the queue is processing and not overloaded.
func (q *Queue) Healthcheck(ctx context.Context) error {
	stats := q.Stats()
	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerNotRunning)
	}
	if int(stats.ActiveJobs) >= cap(q.sem) {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerOverloaded,
			fmt.Errorf("%d/%d slots busy", stats.ActiveJobs, cap(q.sem)))
	}
	return nil
}
