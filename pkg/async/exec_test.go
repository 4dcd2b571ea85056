package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobflow/pkg/async"
)

func TestExec(t *testing.T) {
	t.Parallel()

	t.Run("successful execution", func(t *testing.T) {
		t.Parallel()

		f := async.Exec(context.Background(), "queue-a", func(ctx context.Context, name string) error {
			assert.Equal(t, "queue-a", name)
			return nil
		})
		require.NoError(t, f.Await())
		assert.True(t, f.IsComplete())
	})

	t.Run("propagates function error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("refresh failed")
		f := async.Exec(context.Background(), 0, func(ctx context.Context, _ int) error {
			return wantErr
		})
		assert.ErrorIs(t, f.Await(), wantErr)
	})

	t.Run("pre-cancelled context short-circuits", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		invoked := false
		f := async.Exec(ctx, 0, func(ctx context.Context, _ int) error {
			invoked = true
			return nil
		})
		assert.ErrorIs(t, f.Await(), context.Canceled)
		assert.False(t, invoked)
	})

	t.Run("await with timeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		f := async.Exec(context.Background(), 0, func(ctx context.Context, _ int) error {
			<-release
			return nil
		})

		assert.ErrorIs(t, f.AwaitWithTimeout(10*time.Millisecond), async.ErrTimeout)
		assert.False(t, f.IsComplete())

		close(release)
		assert.NoError(t, f.Await())
	})
}
