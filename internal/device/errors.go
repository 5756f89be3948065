package device

import "errors"

// Domain-specific errors for device tracking.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when the requested device key is not
	// tracked by the registry.
	ErrDeviceNotFound = errors.New("device: not found")
)
