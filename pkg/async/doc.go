// Package async provides a minimal future for fire-and-forget work whose
// only result is an error. The queue core uses it to refresh queue-depth
// gauges off the event path, so a store round-trip never blocks an event
// handler:
//
//	f := async.Exec(ctx, queueName, func(ctx context.Context, name string) error {
//		return refreshDepth(ctx, name)
//	})
//
//	// later, optionally:
//	if err := f.AwaitWithTimeout(time.Second); err != nil {
//		log.Warn("depth refresh lagging", "error", err)
//	}
package async
