// Package logger provides slog attribute helpers shared across the queue
// core. Helpers use the empty Attr pattern for nil safety, so call sites
// never need explicit nil checks:
//
//	log.Error("job failed", logger.Error(err), logger.JobID(job.ID))
//
// The core itself never configures a handler or format; applications own
// the slog handler and inject configured loggers through component options.
package logger
