// Package queue implements the background job-queue core: named durable
// queues for import/calculate/export workloads backed by a shared,
// circuit-breaker-protected store connection, with retry/backoff, typed
// payload validation at enqueue time, per-queue event streams, and
// observability through the metrics collector.
//
// The Registry owns the map of queues. It is constructed explicitly by the
// application root and passed to consumers; there is no package-level
// singleton:
//
//	registry, err := queue.NewRegistry(storage, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	q, err := registry.GetQueue("data-import")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = q.Process(queue.NewHandler(func(ctx context.Context, p queue.ImportPayload) error {
//		return importData(ctx, p.Source, p.Format)
//	}))
//
//	go q.Start(ctx)
//
//	job, err := q.Enqueue(ctx, queue.ImportPayload{Source: "s3://bucket/users.csv", Format: "csv"})
//
// Payloads form a tagged union over the known job kinds; each kind carries
// a statically validated schema checked at enqueue time, so malformed jobs
// fail immediately instead of burning handler attempts.
//
// Queue events are delivered over explicit subscription channels rather
// than callbacks, making ordering and backpressure visible:
//
//	events, unsubscribe := q.Subscribe()
//	defer unsubscribe()
//	for ev := range events {
//		// ev.Kind: waiting, active, completed, failed, ...
//	}
//
// A job handler that returns an error (or panics, or exceeds its configured
// timeout) feeds the retry policy: the job is re-enqueued in delayed state
// with capped exponential backoff until its attempt budget is exhausted,
// then moves to terminal failed state.
package queue
