// Package mqtt provides MQTT client connectivity for the bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the availability topic
//   - Connection health monitoring
//
// # Architecture
//
// The bridge publishes three kinds of topics:
//
//   - Discovery configs (retained) under homeassistant/sensor/.../config,
//     which Home Assistant consumes to create entities
//   - Sensor readings (not retained) under rtlbridge/{bridge_id}/...
//   - Availability flags (retained) per device and for the bridge itself
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	topics := mqtt.Topics{BridgeID: ident.ID}
//	client, err := mqtt.Connect(cfg.MQTT, topics.BridgeAvailability())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Publish(topics.DeviceState("acurite_tower_1234", "temperature_C"),
//	    []byte("21.5"), 1, false)
package mqtt
