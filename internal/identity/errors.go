package identity

import "errors"

// Domain-specific errors for identity operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when no identity has been persisted yet.
	ErrNotFound = errors.New("identity: not found")

	// ErrStorage is returned when the identity cannot be read or written.
	// Callers treat this as fatal at startup.
	ErrStorage = errors.New("identity: storage failure")
)
