package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobflow/core/lifecycle"
)

type fakeCloser struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeCloser) CloseQueues(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	t.Run("requires a closer", func(t *testing.T) {
		t.Parallel()
		_, err := lifecycle.NewManager(nil)
		require.ErrorIs(t, err, lifecycle.ErrNilCloser)
	})

	t.Run("creates with defaults", func(t *testing.T) {
		t.Parallel()
		m, err := lifecycle.NewManager(&fakeCloser{})
		require.NoError(t, err)
		require.NotNil(t, m)
	})
}

func TestManager_Shutdown(t *testing.T) {
	t.Parallel()

	t.Run("closes queues once", func(t *testing.T) {
		t.Parallel()

		closer := &fakeCloser{}
		m, err := lifecycle.NewManager(closer)
		require.NoError(t, err)

		require.NoError(t, m.Shutdown(context.Background()))
		require.NoError(t, m.Shutdown(context.Background()))
		assert.Equal(t, int32(1), closer.calls.Load())

		select {
		case <-m.Done():
		default:
			t.Fatal("Done must be closed after shutdown")
		}
	})

	t.Run("concurrent callers observe the single outcome", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("drain failed")
		closer := &fakeCloser{err: wantErr}
		m, err := lifecycle.NewManager(closer)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.ErrorIs(t, m.Shutdown(context.Background()), wantErr)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), closer.calls.Load())
	})

	t.Run("enforces the drain deadline", func(t *testing.T) {
		t.Parallel()

		closer := &fakeCloser{delay: time.Second}
		m, err := lifecycle.NewManager(closer,
			lifecycle.WithShutdownDeadline(20*time.Millisecond),
		)
		require.NoError(t, err)

		start := time.Now()
		err = m.Shutdown(context.Background())
		require.ErrorIs(t, err, lifecycle.ErrShutdownDeadline)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("runs flush hooks in order after the drain", func(t *testing.T) {
		t.Parallel()

		var order []string
		var mu sync.Mutex
		record := func(name string) lifecycle.FlushFunc {
			return func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				return nil
			}
		}

		m, err := lifecycle.NewManager(&fakeCloser{},
			lifecycle.WithFlush(record("metrics")),
			lifecycle.WithFlush(record("report")),
		)
		require.NoError(t, err)
		m.RegisterFlush(record("late"))

		require.NoError(t, m.Shutdown(context.Background()))
		assert.Equal(t, []string{"metrics", "report", "late"}, order)
	})

	t.Run("failing flush hook does not stop the rest", func(t *testing.T) {
		t.Parallel()

		flushErr := errors.New("flush exploded")
		var ran atomic.Bool

		m, err := lifecycle.NewManager(&fakeCloser{},
			lifecycle.WithFlush(func(ctx context.Context) error { return flushErr }),
			lifecycle.WithFlush(func(ctx context.Context) error {
				ran.Store(true)
				return nil
			}),
		)
		require.NoError(t, err)

		require.ErrorIs(t, m.Shutdown(context.Background()), flushErr)
		assert.True(t, ran.Load())
	})
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	t.Run("shuts down on context cancellation", func(t *testing.T) {
		t.Parallel()

		closer := &fakeCloser{}
		m, err := lifecycle.NewManager(closer)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- m.Run(ctx)()
		}()

		cancel()

		select {
		case err := <-errCh:
			require.NoError(t, err)
			assert.Equal(t, int32(1), closer.calls.Load())
		case <-time.After(3 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}
	})

	t.Run("returns immediately when shutdown already happened", func(t *testing.T) {
		t.Parallel()

		m, err := lifecycle.NewManager(&fakeCloser{})
		require.NoError(t, err)
		require.NoError(t, m.Shutdown(context.Background()))

		done := make(chan error, 1)
		go func() {
			done <- m.Run(context.Background())()
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not observe the completed shutdown")
		}
	})
}
