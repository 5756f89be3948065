package mqtt

import "fmt"

// Topic prefixes.
//
// Bridge topics use the flat scheme: rtlbridge/{bridge_id}/{device}/{field}
// Discovery topics follow Home Assistant's convention:
// homeassistant/{component}/{node_id}/{object_id}/config
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "rtlbridge"

	// DiscoveryPrefix is Home Assistant's default discovery prefix.
	DiscoveryPrefix = "homeassistant"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// All per-bridge topics embed the bridge ID so multiple bridge instances
// can share a broker without colliding:
//
//	topics := mqtt.Topics{BridgeID: "bridge-a1b2c3"}
//	stateTopic := topics.DeviceState("acurite_tower_1234", "temperature_C")
//	// Returns: "rtlbridge/bridge-a1b2c3/acurite_tower_1234/temperature_C"
type Topics struct {
	BridgeID string
}

// BridgeAvailability returns the retained topic carrying the bridge's own
// online/offline flag. Also used as the LWT topic.
//
// Example: rtlbridge/bridge-a1b2c3/availability
func (t Topics) BridgeAvailability() string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, t.BridgeID)
}

// DeviceAvailability returns the retained per-device online/offline topic.
//
// Example: rtlbridge/bridge-a1b2c3/acurite_tower_1234/availability
func (t Topics) DeviceAvailability(deviceSlug string) string {
	return fmt.Sprintf("%s/%s/%s/availability", TopicPrefix, t.BridgeID, deviceSlug)
}

// DeviceState returns the topic for a single entity's readings.
//
// Example: rtlbridge/bridge-a1b2c3/acurite_tower_1234/temperature_C
func (t Topics) DeviceState(deviceSlug, field string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, t.BridgeID, deviceSlug, field)
}

// CleanupCommand returns the topic the bridge listens on for device
// removal requests. Payload: the device key to remove.
//
// Example: rtlbridge/bridge-a1b2c3/command/cleanup
func (t Topics) CleanupCommand() string {
	return fmt.Sprintf("%s/%s/command/cleanup", TopicPrefix, t.BridgeID)
}

// DiscoveryConfig returns the Home Assistant discovery config topic for one
// entity. The node segment embeds the bridge ID so two bridges tracking
// identically keyed devices produce distinct discovery entries.
//
// Example: homeassistant/sensor/bridge-a1b2c3_acurite_tower_1234/temperature_C/config
func (t Topics) DiscoveryConfig(component, deviceSlug, field string) string {
	return fmt.Sprintf("%s/%s/%s_%s/%s/config", DiscoveryPrefix, component, t.BridgeID, deviceSlug, field)
}
