// Package device tracks the population of sensors the bridge has seen.
//
// The registry is the bridge's working memory: each resolved
// measurement is observed against it, and the outcome (new device, new
// entities, or nothing) tells the publishers what work remains. Records
// hold identity, the monotonically growing entity list, availability,
// and sighting timestamps.
//
// Nothing here is persisted. Sensors rebroadcast continuously, so a
// restart rebuilds the registry from the air within one reporting
// cycle, and Home Assistant keeps entity history because entity IDs
// derive only from the stable bridge ID and device key.
//
// # Key Types
//
//   - Record: One tracked device with its entities and availability
//   - Entity: A single published field with presentation metadata
//   - Event: The outcome of observing a measurement
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Every Record it returns is a
// deep copy, so callers can never mutate registry state through a
// result.
package device
