package retry

import (
	"errors"
	"time"
)

var (
	ErrInvalidBaseDelay = errors.New("retry: base delay must be positive")
	ErrInvalidMaxDelay  = errors.New("retry: max delay must be greater than or equal to base delay")
)

// retryable is implemented by errors that can veto retrying.
type retryable interface {
	Retryable() bool
}

// Policy computes backoff decisions for failed job attempts.
// The zero value is not usable; construct with NewPolicy so that the
// base delay and cap are always explicit configuration.
type Policy struct {
	base time.Duration
	cap  time.Duration
}

// Decision is the outcome of a retry evaluation.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// NewPolicy creates a Policy with the given base delay and delay cap.
func NewPolicy(base, maxDelay time.Duration) (Policy, error) {
	if base <= 0 {
		return Policy{}, ErrInvalidBaseDelay
	}
	if maxDelay < base {
		return Policy{}, ErrInvalidMaxDelay
	}
	return Policy{base: base, cap: maxDelay}, nil
}

// Decide evaluates whether a job that has made attemptsMade attempts out of
// a budget of maxAttempts should be retried after the given error.
//
// No retry is granted when the attempt budget is exhausted or when the error
// is classified as non-retryable. Otherwise the delay doubles with each
// completed attempt, capped at the policy maximum: base, 2*base, 4*base, ...
func (p Policy) Decide(attemptsMade, maxAttempts int, err error) Decision {
	if attemptsMade >= maxAttempts {
		return Decision{}
	}
	if !IsRetryable(err) {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.DelayFor(attemptsMade)}
}

// DelayFor returns the backoff delay before retry number attempt, where
// attempt 1 is the first retry. Values below 1 are treated as 1.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.base
	for i := 1; i < attempt; i++ {
		d *= 2
		// Doubling a duration can overflow for large attempt counts;
		// the cap makes further doubling pointless anyway.
		if d >= p.cap || d <= 0 {
			return p.cap
		}
	}
	if d > p.cap {
		return p.cap
	}
	return d
}

// IsRetryable reports whether err permits another attempt. Errors that do
// not implement Retryable() bool are considered transient and retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return true
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
