// Package metrics collects counters, gauges, and histograms for queue
// observability.
//
// The Collector is safe for concurrent use and its update methods never
// panic: observability must not be able to crash business logic, so every
// mutator recovers internally and drops the sample instead of propagating
// a failure to the caller.
//
//	c := metrics.NewCollector()
//	c.JobProcessed("data-import", "import")
//	c.ObserveDuration("data-import", "import", 1200*time.Millisecond)
//	c.SetQueueDepth("data-import", 42)
//
//	snap := c.Snapshot()
//
// Snapshot returns an independent copy of all series, suitable for merging
// with live store depths or rendering to an external metrics system.
package metrics
