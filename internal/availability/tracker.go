package availability

import (
	"fmt"
	"time"

	"github.com/halnode/rtl-bridge/internal/device"
	"github.com/halnode/rtl-bridge/internal/infrastructure/mqtt"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// Registry is the device-tracking surface the tracker needs.
// Satisfied by *device.Registry.
type Registry interface {
	SetOnline(key ingest.DeviceKey, online bool) (bool, error)
	ListStale(now time.Time, thresholds map[ingest.Channel]time.Duration) []device.Record
}

// MQTTClient is the publishing surface the tracker needs.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	PublishRetained(topic string, payload []byte) error
}

// Logger defines the logging interface used by the tracker.
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

// Tracker maintains the retained per-device availability flags.
//
// A device flips online the moment it is heard and offline when a
// periodic sweep finds its last sighting older than its channel's
// threshold. Both transitions are edge-triggered through the registry's
// SetOnline, so the retained topics are rewritten only on change.
type Tracker struct {
	registry   Registry
	mqtt       MQTTClient
	topics     mqtt.Topics
	thresholds map[ingest.Channel]time.Duration
	logger     Logger
}

// NewTracker creates an availability tracker.
//
// Parameters:
//   - registry: Device registry holding the online flags
//   - client: MQTT client for the retained availability topics
//   - bridgeID: Bridge identity embedded in topic paths
//   - thresholds: Per-channel silence duration before a device is
//     considered offline; channels absent from the map never expire
func NewTracker(registry Registry, client MQTTClient, bridgeID string, thresholds map[ingest.Channel]time.Duration) *Tracker {
	return &Tracker{
		registry:   registry,
		mqtt:       client,
		topics:     mqtt.Topics{BridgeID: bridgeID},
		thresholds: thresholds,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// MarkOnline flags a device online after a sighting, publishing the
// retained "online" payload only when the flag actually flips.
func (t *Tracker) MarkOnline(rec device.Record) error {
	changed, err := t.registry.SetOnline(rec.Key, true)
	if err != nil {
		return fmt.Errorf("marking %s online: %w", rec.Key, err)
	}
	if !changed {
		return nil
	}

	topic := t.availabilityTopic(rec)
	if err := t.mqtt.PublishRetained(topic, []byte(mqtt.PayloadOnline)); err != nil {
		// Roll back so the next sighting retries the publish.
		t.registry.SetOnline(rec.Key, false) //nolint:errcheck // Best-effort rollback
		return fmt.Errorf("publishing online for %s: %w", rec.Key, err)
	}

	t.logger.Info("device online", "key", string(rec.Key))
	return nil
}

// Sweep marks devices offline whose silence exceeds their channel
// threshold at the given instant, publishing retained "offline"
// payloads for each transition.
//
// Returns:
//   - int: Number of devices flipped offline
func (t *Tracker) Sweep(now time.Time) int {
	stale := t.registry.ListStale(now, t.thresholds)

	var flipped int
	for _, rec := range stale {
		changed, err := t.registry.SetOnline(rec.Key, false)
		if err != nil || !changed {
			continue
		}

		topic := t.availabilityTopic(rec)
		if err := t.mqtt.PublishRetained(topic, []byte(mqtt.PayloadOffline)); err != nil {
			// Revert the flag; the next sweep will retry.
			t.registry.SetOnline(rec.Key, true) //nolint:errcheck // Best-effort rollback
			t.logger.Warn("offline publish failed",
				"key", string(rec.Key),
				"error", err)
			continue
		}

		flipped++
		t.logger.Info("device offline",
			"key", string(rec.Key),
			"last_seen", rec.LastSeenAt)
	}
	return flipped
}

// availabilityTopic picks the retained topic for a device. The bridge's
// own system device shares the bridge availability topic that the MQTT
// client and LWT already manage.
func (t *Tracker) availabilityTopic(rec device.Record) string {
	if rec.Channel == ingest.ChannelSystem {
		return t.topics.BridgeAvailability()
	}
	return t.topics.DeviceAvailability(rec.Key.Slug())
}
