// Package jobflow provides a Redis-backed background job system for
// asynchronous imports, recalculations, and exports. The library implements
// modern Go patterns including generics for type-safe job handlers,
// functional options for configuration, and interface-based design for
// flexibility and testability.
//
// # Package Organization
//
//   - core/queue: named job queues, the registry, payload schemas, events,
//     and the durable Storage abstraction (Redis and in-memory)
//   - core/retry: bounded exponential backoff decisions for failed attempts
//   - core/breaker: circuit breaker guarding every store operation
//   - core/metrics: in-process counters, gauges, and duration histograms
//   - core/lifecycle: graceful shutdown coordination and flush hooks
//   - core/health: readiness aggregation over dependency checks
//   - core/config: environment-based configuration loading
//   - core/logger: shared slog attribute helpers
//   - integration/database/redis: managed Redis connection with retry and
//     Sentinel support
//   - pkg/async: future-style asynchronous execution helpers
//
// # Getting Started
//
//	storage, err := queue.NewRedisStorage(client, cb)
//	registry, err := queue.NewRegistry(storage, cfg)
//	q, err := registry.GetQueue("imports")
//	q.Process(queue.NewHandler(func(ctx context.Context, p queue.ImportPayload) error {
//		// do the work
//		return nil
//	}))
//	go q.Start(ctx)
//	job, err := q.Enqueue(ctx, queue.ImportPayload{Source: "s3://bucket/x.csv", Format: "csv"})
//
// For detailed documentation on any package, use the go doc command:
//
//	go doc github.com/dmitrymomot/jobflow/core/queue
package jobflow
