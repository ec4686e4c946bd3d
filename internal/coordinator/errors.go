package coordinator

import "errors"

// Coordinator-level errors are returned directly to the caller as typed
// errors and cause no state mutation.
var (
	// ErrRunNotFound is returned for lookups of unknown run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownPath is returned when a run is started against an
	// unregistered agent path.
	ErrUnknownPath = errors.New("unknown agent path")

	// ErrInvalidState is returned for illegal transitions: approving a
	// stage that is not awaiting approval, mutating a terminal run, etc.
	ErrInvalidState = errors.New("invalid run state")
)

// IsNotFound returns true if the error indicates an unknown run ID.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsInvalidState returns true if the error indicates an illegal transition.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
