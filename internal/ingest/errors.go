package ingest

import "errors"

// Domain-specific errors for event resolution.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedEvent is returned when an event lacks the fields needed
	// to derive a device key (e.g. a TCP packet without model or id).
	ErrMalformedEvent = errors.New("ingest: malformed event")

	// ErrUnknownChannel is returned for events from an unrecognised
	// ingestion channel.
	ErrUnknownChannel = errors.New("ingest: unknown channel")

	// ErrDeviceFiltered is returned when a device is excluded by the
	// whitelist/blacklist configuration. Not a fault; callers drop the
	// event silently at debug level.
	ErrDeviceFiltered = errors.New("ingest: device filtered")
)
