package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/halnode/rtl-bridge/internal/device"
	"github.com/halnode/rtl-bridge/internal/infrastructure/mqtt"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// All entities are value-reporting, so they announce as the sensor
// component regardless of channel.
const componentSensor = "sensor"

// manufacturer appears in Home Assistant's device page for every
// announced device.
const manufacturer = "rtl-bridge"

// MQTTClient is the publishing surface the announcer needs.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
}

// Logger defines the logging interface used by discovery publishers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BridgeInfo identifies the bridge in announced device blocks.
type BridgeInfo struct {
	ID      string
	Name    string
	Version string
}

// Announcer publishes retained Home Assistant discovery configs and
// retracts them on cleanup.
type Announcer struct {
	topics mqtt.Topics
	mqtt   MQTTClient
	bridge BridgeInfo
	logger Logger
}

// NewAnnouncer creates a discovery announcer for the given bridge.
func NewAnnouncer(client MQTTClient, bridge BridgeInfo) *Announcer {
	return &Announcer{
		topics: mqtt.Topics{BridgeID: bridge.ID},
		mqtt:   client,
		bridge: bridge,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the announcer.
func (a *Announcer) SetLogger(logger Logger) {
	a.logger = logger
}

// configPayload is the JSON document published to each entity's
// retained discovery topic, shaped per Home Assistant's MQTT discovery
// schema. Empty optional fields are omitted.
type configPayload struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	AvailabilityTopic string `json:"availability_topic"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	Icon              string `json:"icon,omitempty"`
	EntityCategory    string `json:"entity_category,omitempty"`

	Device deviceBlock `json:"device"`
}

// deviceBlock groups an entity's sensors under one Home Assistant
// device. Identifiers are shared by all of the device's entities.
type deviceBlock struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// Announce publishes retained discovery configs for the given entities
// of a device. Pass the record's full entity list for a new device, or
// just the additions when an existing device grows.
//
// Publishing is idempotent: the configs are retained and re-publishing
// an identical config is a no-op for Home Assistant.
func (a *Announcer) Announce(rec device.Record, entities []device.Entity) error {
	slug := rec.Key.Slug()

	for _, e := range entities {
		payload, err := json.Marshal(a.configFor(rec, slug, e))
		if err != nil {
			return fmt.Errorf("encoding discovery config for %s: %w", e.ID, err)
		}

		topic := a.topics.DiscoveryConfig(componentSensor, slug, e.Field)
		if err := a.mqtt.PublishRetained(topic, payload); err != nil {
			return fmt.Errorf("publishing discovery config for %s: %w", e.ID, err)
		}
	}

	a.logger.Info("discovery published",
		"key", string(rec.Key),
		"entities", len(entities))
	return nil
}

// Retract clears every retained topic belonging to a removed device:
// each entity's discovery config and state, plus the device's
// availability flag. Home Assistant deletes the entities in response.
func (a *Announcer) Retract(rec device.Record) error {
	slug := rec.Key.Slug()

	var firstErr error
	for _, e := range rec.Entities {
		if err := a.mqtt.ClearRetained(a.topics.DiscoveryConfig(componentSensor, slug, e.Field)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("retracting discovery config for %s: %w", e.ID, err)
		}
		if err := a.mqtt.ClearRetained(a.topics.DeviceState(slug, e.Field)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("clearing state for %s: %w", e.ID, err)
		}
	}
	if err := a.mqtt.ClearRetained(a.topics.DeviceAvailability(slug)); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("clearing availability for %s: %w", rec.Key, err)
	}

	if firstErr == nil {
		a.logger.Info("discovery retracted",
			"key", string(rec.Key),
			"entities", len(rec.Entities))
	}
	return firstErr
}

func (a *Announcer) configFor(rec device.Record, slug string, e device.Entity) configPayload {
	cfg := configPayload{
		Name:              e.Field,
		UniqueID:          e.ID,
		StateTopic:        a.topics.DeviceState(slug, e.Field),
		AvailabilityTopic: a.topics.DeviceAvailability(slug),
		UnitOfMeasurement: e.Unit,
		DeviceClass:       e.DeviceClass,
		StateClass:        e.StateClass,
		Icon:              e.Icon,
		EntityCategory:    e.Category,
		Device: deviceBlock{
			Identifiers:  []string{a.bridge.ID + "_" + slug},
			Name:         rec.DisplayName,
			Model:        rec.Model,
			Manufacturer: manufacturer,
			ViaDevice:    a.bridge.ID,
		},
	}

	// The bridge's own device carries the version and is the root of the
	// via_device chain, announced against the bridge availability topic.
	if rec.Key.Channel() == ingest.ChannelSystem {
		cfg.AvailabilityTopic = a.topics.BridgeAvailability()
		cfg.Device.Identifiers = []string{a.bridge.ID}
		cfg.Device.SWVersion = a.bridge.Version
		cfg.Device.ViaDevice = ""
	}

	return cfg
}
