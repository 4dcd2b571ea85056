package breaker

import "errors"

var (
	// ErrCircuitOpen is returned when the breaker is open and the wrapped
	// operation was not invoked. It signals systemic unavailability of the
	// protected dependency, not a fault of the individual call.
	ErrCircuitOpen = errors.New("breaker: circuit open")

	ErrInvalidThreshold    = errors.New("breaker: error threshold percentage must be in range 1-100")
	ErrInvalidResetTimeout = errors.New("breaker: reset timeout must be positive")
	ErrInvalidCallTimeout  = errors.New("breaker: call timeout must be positive")
	ErrNilOperation        = errors.New("breaker: operation is nil")
)
