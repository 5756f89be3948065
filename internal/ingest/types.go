package ingest

import (
	"strings"
	"time"
)

// Channel identifies which ingestion path produced an event.
type Channel string

// Ingestion channels.
const (
	// ChannelTCP carries newline-JSON packets from network sensors.
	ChannelTCP Channel = "tcp"

	// ChannelRadio carries decoded rtl_433 output.
	ChannelRadio Channel = "radio"

	// ChannelSystem carries the bridge's own health measurements.
	ChannelSystem Channel = "system"
)

// RawEvent is one decoded JSON object from an ingestion adapter,
// before identity resolution.
type RawEvent struct {
	Channel    Channel
	Fields     map[string]any
	ReceivedAt time.Time
}

// DeviceKey is the stable identity of a physical device.
//
// Format:
//   - tcp:{model}:{id}
//   - radio:{model}:{id or channel or "0"}
//   - system:{bridge_id}
//
// Two radio devices of the same model reporting the same id/channel
// collapse into one key. That is an accepted limitation: the fields the
// key derives from are the only stable ones the protocols offer.
type DeviceKey string

// Channel returns the ingestion channel encoded in the key.
func (k DeviceKey) Channel() Channel {
	s := string(k)
	if i := strings.IndexByte(s, ':'); i > 0 {
		return Channel(s[:i])
	}
	return ""
}

// Slug returns the key in MQTT-topic-safe form: lowercase, with every
// character outside [a-z0-9] replaced by underscore.
//
// Example: "radio:TempHum1:5" -> "radio_temphum1_5"
func (k DeviceKey) Slug() string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(string(k)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Measurement is a resolved, normalised reading from one device.
//
// Fields values are float64, bool, or string; nested JSON has been
// flattened and identity/noise fields stripped.
type Measurement struct {
	Key         DeviceKey
	Model       string
	DisplayName string
	Timestamp   time.Time
	Fields      map[string]any
}
