// Package discovery publishes the bridge's devices to Home Assistant.
//
// It owns the MQTT side of the Home Assistant contract: retained
// discovery configs announcing each entity, non-retained state
// messages carrying readings, and retraction of everything retained
// when a device is cleaned up.
//
// The Announcer and StatePublisher take small client interfaces rather
// than the concrete MQTT client so tests can record traffic without a
// broker.
package discovery
