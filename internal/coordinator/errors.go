package coordinator

import "errors"

// Domain errors for the coordinator package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, coordinator.ErrUnknownCommand) {
//	    // reject the request as a client error
//	}
var (
	// ErrUpdateFailed is returned when a refresh produced no usable state:
	// the cloud fetch failed and no push data is available to fall back on.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrUnknownCommand is returned for command names not in the registry.
	ErrUnknownCommand = errors.New("coordinator: unknown command")

	// ErrInvalidArgument is returned when a command is missing a required
	// argument or an argument has the wrong shape.
	ErrInvalidArgument = errors.New("coordinator: invalid command argument")

	// ErrStopped is returned when an operation is attempted after Stop.
	ErrStopped = errors.New("coordinator: stopped")

	// ErrNotStarted is returned when an operation requires a running loop.
	ErrNotStarted = errors.New("coordinator: not started")
)
