package queue

import (
	"context"
	"encoding/json"
)

// Handler processes one job. Exactly one handler is registered per queue
// by the owning application. Returning an error feeds the retry policy;
// exceeding the configured handler timeout cancels ctx and counts as a
// failure.
type Handler func(ctx context.Context, job *Job) error

// NewHandler adapts a typed payload function into a Handler. The payload
// is unmarshaled and re-validated before the function runs; decode and
// validation failures are non-retryable.
func NewHandler[T Payload](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, job *Job) error {
		var p T
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return &ValidationError{JobType: job.Type, Err: err}
		}
		if err := ValidatePayload(p); err != nil {
			return err
		}
		return fn(ctx, p)
	}
}
