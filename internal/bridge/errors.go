package bridge

import "errors"

var (
	// ErrInvalidCommand is returned for a command payload that cannot be parsed.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("bridge: already started")
)
