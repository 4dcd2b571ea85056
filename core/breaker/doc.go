// Package breaker implements the circuit breaker pattern for calls against
// an occasionally-unavailable dependency, such as a shared Redis connection.
//
// A CircuitBreaker tracks call outcomes over a rolling time window. While
// the failure percentage stays below the configured threshold the breaker is
// closed and calls pass through. Once the threshold is exceeded the breaker
// opens and every call fails immediately with ErrCircuitOpen without
// touching the dependency. After the reset timeout a single trial call is
// allowed through; its outcome decides whether the breaker closes again or
// re-opens.
//
//	cb, err := breaker.New(breaker.Config{
//		CallTimeout:              2 * time.Second,
//		ErrorThresholdPercentage: 50,
//		ResetTimeout:             30 * time.Second,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = cb.Do(ctx, func(ctx context.Context) error {
//		return rdb.Ping(ctx).Err()
//	})
//	if errors.Is(err, breaker.ErrCircuitOpen) {
//		// dependency considered unavailable, back off
//	}
//
// Callers must distinguish ErrCircuitOpen from a genuine call failure: it
// signals systemic unavailability rather than a per-call fault. State
// transitions are observable through WithOnStateChange for logging and
// alerting.
package breaker
