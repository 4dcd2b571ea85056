package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Depth is a live per-queue occupancy snapshot from the store.
type Depth struct {
	Waiting int64
	Delayed int64
	Active  int64
	Failed  int64
}

// Current returns the waiting+active count used for the depth gauge.
func (d Depth) Current() int64 { return d.Waiting + d.Active }

// Storage is the durable job store shared by every queue. Implementations
// must be safe for concurrent use; the Redis implementation routes every
// operation through the shared circuit breaker.
type Storage interface {
	// Enqueue appends a waiting job to the queue in FIFO order.
	Enqueue(ctx context.Context, job *Job) error

	// EnqueueDelayed parks a job until job.EligibleAt. Delayed jobs do not
	// preserve their original queue position.
	EnqueueDelayed(ctx context.Context, job *Job) error

	// Dequeue claims the oldest waiting job, marking it active. It blocks
	// up to the given duration and returns ErrNoJob when nothing arrives.
	Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error)

	// PromoteDue moves delayed jobs whose eligibility time has passed back
	// into the waiting list. Returns the number promoted.
	PromoteDue(ctx context.Context, queue string, now time.Time) (int, error)

	// Complete removes a finished job from the active set.
	Complete(ctx context.Context, job *Job) error

	// Fail moves a job from the active set to the terminal failed set.
	Fail(ctx context.Context, job *Job) error

	// Remove deletes a waiting or delayed job before execution.
	Remove(ctx context.Context, queue string, id uuid.UUID) (*Job, error)

	// RecoverStalled re-enqueues active jobs whose claim is older than the
	// lease and returns them for event emission.
	RecoverStalled(ctx context.Context, queue string, lease time.Duration) ([]*Job, error)

	// Depth reports live per-state job counts for a queue.
	Depth(ctx context.Context, queue string) (Depth, error)

	// Clean purges terminally failed jobs, returning the number removed.
	Clean(ctx context.Context, queue string) (int, error)

	// Close releases the underlying store connection.
	Close() error
}
