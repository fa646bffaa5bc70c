package coordinator

import "errors"

// Domain errors for the coordinator package.
var (
	// ErrUnknownVerb is returned when a command verb is not recognised.
	ErrUnknownVerb = errors.New("coordinator: unknown verb")

	// ErrNoGateway is returned when the coordinator is built without a
	// registered gateway.
	ErrNoGateway = errors.New("coordinator: gateway not registered")

	// ErrSchedulerRunning is returned by Start when already started.
	ErrSchedulerRunning = errors.New("coordinator: scheduler already running")
)
