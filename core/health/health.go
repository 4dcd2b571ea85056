package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/jobflow/core/logger"
)

// CheckFunc verifies one dependency is functioning.
type CheckFunc func(ctx context.Context) error

// Readiness aggregates dependency checks into a single probe. Every check
// runs even after a failure so the returned error names all unhealthy
// dependencies, not just the first.
//
// Example:
//
//	ready := health.Readiness(log,
//		redis.Healthcheck(conn),
//		registry.Healthcheck,
//	)
func Readiness(log *slog.Logger, checks ...CheckFunc) CheckFunc {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Monitor runs the check on an interval and reports status flips through
// the callback. Returns an errgroup-compatible runner.
func Monitor(check CheckFunc, interval time.Duration, onChange func(healthy bool, err error)) func(ctx context.Context) func() error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return func(ctx context.Context) func() error {
		return func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			healthy := true
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					err := check(ctx)
					ok := err == nil
					if ok != healthy {
						healthy = ok
						if onChange != nil {
							onChange(ok, err)
						}
					}
				}
			}
		}
	}
}
