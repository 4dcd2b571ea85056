package breaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobflow/core/breaker"
)

var errStoreDown = errors.New("store down")

func testConfig() breaker.Config {
	return breaker.Config{
		CallTimeout:              time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             50 * time.Millisecond,
		WindowSize:               10 * time.Second,
		MinRequests:              2,
	}
}

func failN(cb *breaker.CircuitBreaker, n int) {
	for range n {
		_ = cb.Do(context.Background(), func(ctx context.Context) error {
			return errStoreDown
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid configuration starts closed", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)
		assert.Equal(t, breaker.StateClosed, cb.State())
	})

	t.Run("invalid threshold", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.ErrorThresholdPercentage = 0
		_, err := breaker.New(cfg)
		assert.ErrorIs(t, err, breaker.ErrInvalidThreshold)

		cfg.ErrorThresholdPercentage = 101
		_, err = breaker.New(cfg)
		assert.ErrorIs(t, err, breaker.ErrInvalidThreshold)
	})

	t.Run("invalid reset timeout", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.ResetTimeout = 0
		_, err := breaker.New(cfg)
		assert.ErrorIs(t, err, breaker.ErrInvalidResetTimeout)
	})

	t.Run("invalid call timeout", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.CallTimeout = 0
		_, err := breaker.New(cfg)
		assert.ErrorIs(t, err, breaker.ErrInvalidCallTimeout)
	})
}

func TestCircuitBreaker_Do(t *testing.T) {
	t.Parallel()

	t.Run("passes calls through while closed", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		invoked := 0
		for range 10 {
			err := cb.Do(context.Background(), func(ctx context.Context) error {
				invoked++
				return nil
			})
			require.NoError(t, err)
		}
		assert.Equal(t, 10, invoked)
		assert.Equal(t, breaker.StateClosed, cb.State())
	})

	t.Run("nil operation", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		assert.ErrorIs(t, cb.Do(context.Background(), nil), breaker.ErrNilOperation)
	})

	t.Run("opens when failure percentage exceeds threshold", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		failN(cb, 2)
		assert.Equal(t, breaker.StateOpen, cb.State())
	})

	t.Run("failure percentage equal to threshold stays closed", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		_ = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
		failN(cb, 1)

		// 1 of 2 calls failed: exactly 50%, not above the 50% threshold.
		assert.Equal(t, breaker.StateClosed, cb.State())
	})

	t.Run("fails fast without invoking operation while open", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		failN(cb, 2)
		require.Equal(t, breaker.StateOpen, cb.State())

		invoked := false
		err = cb.Do(context.Background(), func(ctx context.Context) error {
			invoked = true
			return nil
		})
		assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
		assert.False(t, invoked)
	})

	t.Run("minimum request volume gates opening", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.MinRequests = 5
		cb, err := breaker.New(cfg)
		require.NoError(t, err)

		failN(cb, 4)
		assert.Equal(t, breaker.StateClosed, cb.State())

		failN(cb, 1)
		assert.Equal(t, breaker.StateOpen, cb.State())
	})

	t.Run("call timeout counts as failure", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.CallTimeout = 10 * time.Millisecond
		cfg.MinRequests = 1
		cb, err := breaker.New(cfg)
		require.NoError(t, err)

		err = cb.Do(context.Background(), func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, breaker.StateOpen, cb.State())
	})
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Parallel()

	t.Run("successful trial closes the breaker", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		failN(cb, 2)
		require.Equal(t, breaker.StateOpen, cb.State())

		time.Sleep(60 * time.Millisecond)

		err = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, breaker.StateClosed, cb.State())
	})

	t.Run("failed trial re-opens and resets the timer", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		failN(cb, 2)
		time.Sleep(60 * time.Millisecond)

		failN(cb, 1) // trial call fails
		assert.Equal(t, breaker.StateOpen, cb.State())

		// Timer restarted: still open immediately after the failed trial.
		err = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	})

	t.Run("only one trial call in flight", func(t *testing.T) {
		t.Parallel()

		cb, err := breaker.New(testConfig())
		require.NoError(t, err)

		failN(cb, 2)
		time.Sleep(60 * time.Millisecond)

		trialStarted := make(chan struct{})
		release := make(chan struct{})

		go func() {
			_ = cb.Do(context.Background(), func(ctx context.Context) error {
				close(trialStarted)
				<-release
				return nil
			})
		}()

		<-trialStarted

		// A second call while the trial is in flight is rejected.
		err = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, breaker.ErrCircuitOpen)

		close(release)
	})
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions []string

	cb, err := breaker.New(testConfig(), breaker.WithOnStateChange(func(from, to breaker.State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, string(from)+"->"+string(to))
	}))
	require.NoError(t, err)

	failN(cb, 2)
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cb.Do(context.Background(), func(ctx context.Context) error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}

func TestCircuitBreaker_WindowCounts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MinRequests = 100 // keep the breaker closed for the whole test
	cb, err := breaker.New(cfg)
	require.NoError(t, err)

	_ = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Do(context.Background(), func(ctx context.Context) error { return nil })
	failN(cb, 1)

	counts := cb.WindowCounts()
	assert.Equal(t, 2, counts.Successes)
	assert.Equal(t, 1, counts.Failures)
	assert.Equal(t, 33, counts.FailurePercentage())
}
