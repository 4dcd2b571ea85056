// Package health aggregates dependency checks into readiness probes.
//
// Checks follow the func(context.Context) error signature exposed by the
// store client and the queue registry:
//
//	ready := health.Readiness(log,
//		redis.Healthcheck(conn),
//		registry.Healthcheck,
//	)
//	if err := ready(ctx); err != nil {
//		// one or more dependencies are unhealthy
//	}
//
// Monitor wraps a check in a periodic loop suitable for errgroup:
//
//	g.Go(health.Monitor(ready, 30*time.Second, onChange)(ctx))
package health
