package async

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by AwaitWithTimeout when the future has not
	// completed within the given duration.
	ErrTimeout = errors.New("async: await timeout")
)

// Future represents an asynchronous computation that only returns an error.
type Future struct {
	err  error
	done chan struct{}
}

// Exec runs fn asynchronously with the given parameter and returns a Future
// for its completion. A pre-cancelled context short-circuits without
// invoking fn.
func Exec[T any](ctx context.Context, param T, fn func(context.Context, T) error) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		select {
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		default:
		}

		f.err = fn(ctx, param)
	}()

	return f
}

// Await blocks until the computation completes and returns its error.
func (f *Future) Await() error {
	<-f.done
	return f.err
}

// AwaitWithTimeout blocks until completion or the timeout elapses.
func (f *Future) AwaitWithTimeout(timeout time.Duration) error {
	select {
	case <-f.done:
		return f.err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// IsComplete reports completion without blocking.
func (f *Future) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
