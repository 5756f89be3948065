// Package bridge runs the event pipeline.
//
// The engine is the bridge's only consumer of the event queue: TCP
// handlers, radio readers and the system monitor all produce into the
// queue, and one goroutine resolves, tracks, announces and publishes
// everything in arrival order. MQTT callbacks (cleanup commands,
// reconnects) reach the engine through a command channel rather than
// touching shared state.
//
// Publishing can be rate-limited per device: within a throttle window
// numeric readings are averaged rather than discarded, so a chatty
// sensor costs bandwidth, not accuracy.
package bridge
