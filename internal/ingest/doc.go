// Package ingest resolves raw adapter events into identified measurements.
//
// The resolver is the single place where device identity is derived.
// Keys are built only from fields that stay stable across transmissions
// (model, id, channel); volatile fields like rolling codes are stripped
// first. Resolution is pure - no I/O and no state - which keeps the
// identity rules trivially testable.
//
// Beyond identity, the resolver normalises payloads: nested JSON is
// flattened, configured noise fields are dropped, Fahrenheit-only
// temperatures are converted to Celsius, and a dew point can be derived
// when temperature and humidity travel together.
package ingest
