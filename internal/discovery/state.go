package discovery

import (
	"strconv"
	"sync"

	"github.com/halnode/rtl-bridge/internal/infrastructure/mqtt"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// StateMQTTClient is the publishing surface the state publisher needs.
// Satisfied by *mqtt.Client.
type StateMQTTClient interface {
	PublishString(topic, payload string, qos byte, retained bool) error
}

// StatePublisher pushes entity readings to their state topics.
//
// State messages are not retained: a stale retained reading surviving a
// device outage would look like live data in Home Assistant. Instead
// the publisher keeps the most recent payload per topic in memory -
// whether or not the broker was reachable when it arrived - and replays
// the lot after a reconnect, so Home Assistant recovers current values
// without waiting a full reporting cycle.
type StatePublisher struct {
	topics mqtt.Topics
	mqtt   StateMQTTClient
	qos    byte
	logger Logger

	mu   sync.Mutex
	last map[string]string
}

// NewStatePublisher creates a state publisher for the given bridge.
func NewStatePublisher(client StateMQTTClient, bridgeID string, qos byte) *StatePublisher {
	return &StatePublisher{
		topics: mqtt.Topics{BridgeID: bridgeID},
		mqtt:   client,
		qos:    qos,
		logger: noopLogger{},
		last:   make(map[string]string),
	}
}

// SetLogger sets the logger for the publisher.
func (p *StatePublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Publish sends every field of a measurement to its state topic.
//
// The cache is updated before the publish is attempted: during a broker
// outage readings keep superseding each other in memory, and the
// reconnect replay carries the newest value rather than the last one
// that happened to go through. Individual publish failures are logged
// and skipped rather than aborting the batch.
func (p *StatePublisher) Publish(m ingest.Measurement) {
	slug := m.Key.Slug()

	for field, value := range m.Fields {
		topic := p.topics.DeviceState(slug, field)
		payload := formatValue(value)

		p.mu.Lock()
		p.last[topic] = payload
		p.mu.Unlock()

		if err := p.mqtt.PublishString(topic, payload, p.qos, false); err != nil {
			p.logger.Warn("state publish failed",
				"topic", topic,
				"error", err)
		}
	}
}

// RepublishAll replays the last known payload of every state topic.
// Called after a broker reconnect.
func (p *StatePublisher) RepublishAll() {
	p.mu.Lock()
	snapshot := make(map[string]string, len(p.last))
	for topic, payload := range p.last {
		snapshot[topic] = payload
	}
	p.mu.Unlock()

	var failed int
	for topic, payload := range snapshot {
		if err := p.mqtt.PublishString(topic, payload, p.qos, false); err != nil {
			failed++
		}
	}

	p.logger.Info("state republished after reconnect",
		"topics", len(snapshot),
		"failed", failed)
}

// Forget drops cached payloads for a removed device so a reconnect does
// not resurrect its readings.
func (p *StatePublisher) Forget(key ingest.DeviceKey) {
	prefix := p.topics.DeviceState(key.Slug(), "")

	p.mu.Lock()
	defer p.mu.Unlock()
	for topic := range p.last {
		if len(topic) >= len(prefix) && topic[:len(prefix)] == prefix {
			delete(p.last, topic)
		}
	}
}

// formatValue renders a measurement value as a state payload.
// Booleans become Home Assistant's conventional ON/OFF strings.
func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "ON"
		}
		return "OFF"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	default:
		return ""
	}
}
