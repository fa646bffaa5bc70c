package lock

import "errors"

// Domain errors for the lock package.
//
//	if errors.Is(err, lock.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a lock ID does not exist.
	ErrDeviceNotFound = errors.New("lock: not found")

	// ErrDeviceExists is returned when adding a lock whose ID is taken.
	ErrDeviceExists = errors.New("lock: already exists")

	// ErrGatewayNotFound is returned when a gateway ID is not registered.
	ErrGatewayNotFound = errors.New("lock: gateway not found")

	// ErrGatewayExists is returned when registering a gateway ID twice.
	ErrGatewayExists = errors.New("lock: gateway already registered")

	// ErrInvalidRecord is returned when a directory record fails validation.
	ErrInvalidRecord = errors.New("lock: invalid record")
)
