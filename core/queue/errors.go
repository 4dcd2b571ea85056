package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnknownQueue is returned by GetQueue for names absent from the
	// configured queue set. It is a configuration error fatal to the call,
	// never retried internally.
	ErrUnknownQueue = errors.New("queue: unknown queue name")

	ErrNilStorage      = errors.New("queue: storage is nil")
	ErrNilHandler      = errors.New("queue: handler is nil")
	ErrNoHandler       = errors.New("queue: no handler registered")
	ErrNilPayload      = errors.New("queue: payload is nil")
	ErrInvalidJobType  = errors.New("queue: invalid job type")
	ErrQueueClosed     = errors.New("queue: queue is closed")
	ErrRegistryClosed  = errors.New("queue: registry is closed")
	ErrAlreadyStarted  = errors.New("queue: already started")
	ErrNotStarted      = errors.New("queue: not started")
	ErrShutdownTimeout = errors.New("queue: shutdown timeout exceeded")

	// ErrNoJob is returned by storage dequeue when no job is available
	// within the blocking window.
	ErrNoJob = errors.New("queue: no job available")

	// ErrJobNotFound is returned by storage lookups for unknown job IDs.
	ErrJobNotFound = errors.New("queue: job not found")

	ErrHealthcheckFailed = errors.New("queue: healthcheck failed")
	ErrWorkerNotRunning  = errors.New("queue: worker not running")
	ErrWorkerOverloaded  = errors.New("queue: worker overloaded")
)

// ValidationError reports a payload that failed schema validation at
// enqueue or decode time. It is non-retryable: a malformed payload cannot
// become valid by waiting.
type ValidationError struct {
	JobType JobType
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("queue: invalid %s payload: %v", e.JobType, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Retryable marks validation failures as terminal for the retry policy.
func (e *ValidationError) Retryable() bool { return false }

// ExecutionError reports a handler failure for a specific job attempt.
// It drives the retry policy and carries enough context for operators to
// locate the failing job.
type ExecutionError struct {
	JobID   uuid.UUID
	Queue   string
	JobType JobType
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("queue: job %s on %q failed at attempt %d: %v",
		e.JobID, e.Queue, e.Attempt, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
