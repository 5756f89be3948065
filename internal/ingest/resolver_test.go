package ingest

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func testResolver() *Resolver {
	return NewResolver(Config{
		BridgeID:   "bridge-a1b2c3",
		BridgeName: "Workshop Bridge",
		SkipKeys:   []string{"time", "mod", "mic", "protocol"},
	})
}

// decode parses a JSON payload the way the adapters do.
func decode(t *testing.T, payload string) map[string]any {
	t.Helper()

	var fields map[string]any
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		t.Fatalf("decoding test payload: %v", err)
	}
	return fields
}

func TestResolve_TCPSensor(t *testing.T) {
	r := testResolver()
	now := time.Now()

	ev := RawEvent{
		Channel:    ChannelTCP,
		ReceivedAt: now,
		Fields: decode(t, `{
			"model": "UnoR4_WiFi_Sensor",
			"id": "workshop",
			"temperature_C": 21.5,
			"humidity": 47,
			"battery_ok": 1,
			"rssi": -67
		}`),
	}

	m, err := r.Resolve(ev)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if m.Key != "tcp:UnoR4_WiFi_Sensor:workshop" {
		t.Errorf("Key = %q, want %q", m.Key, "tcp:UnoR4_WiFi_Sensor:workshop")
	}
	if m.Model != "UnoR4_WiFi_Sensor" {
		t.Errorf("Model = %q, want %q", m.Model, "UnoR4_WiFi_Sensor")
	}
	if !m.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", m.Timestamp, now)
	}

	// model and id are identity, not entities: exactly four fields remain.
	want := map[string]float64{
		"temperature_C": 21.5,
		"humidity":      47,
		"battery_ok":    1,
		"rssi":          -67,
	}
	if len(m.Fields) != len(want) {
		t.Fatalf("Fields = %v, want %d fields", m.Fields, len(want))
	}
	for k, v := range want {
		got, ok := m.Fields[k].(float64)
		if !ok || got != v {
			t.Errorf("Fields[%q] = %v, want %v", k, m.Fields[k], v)
		}
	}
}

func TestResolve_RadioRollingCodeStable(t *testing.T) {
	r := testResolver()

	first := RawEvent{
		Channel:    ChannelRadio,
		ReceivedAt: time.Now(),
		Fields: decode(t, `{
			"model": "TempHum1",
			"id": 5,
			"channel": 2,
			"code": "8f3a21",
			"temperature_C": 21.4
		}`),
	}
	second := RawEvent{
		Channel:    ChannelRadio,
		ReceivedAt: time.Now(),
		Fields: decode(t, `{
			"model": "TempHum1",
			"id": 5,
			"channel": 2,
			"code": "d97b02",
			"temperature_C": 21.6
		}`),
	}

	m1, err := r.Resolve(first)
	if err != nil {
		t.Fatalf("Resolve(first) error = %v", err)
	}
	m2, err := r.Resolve(second)
	if err != nil {
		t.Fatalf("Resolve(second) error = %v", err)
	}

	if m1.Key != "radio:TempHum1:5" {
		t.Errorf("Key = %q, want %q", m1.Key, "radio:TempHum1:5")
	}
	if m1.Key != m2.Key {
		t.Errorf("rolling code changed identity: %q vs %q", m1.Key, m2.Key)
	}

	// The code must not leak into the fields either.
	for _, m := range []Measurement{m1, m2} {
		if _, ok := m.Fields["code"]; ok {
			t.Errorf("rolling code leaked into fields: %v", m.Fields)
		}
	}
}

func TestResolve_ChannelFieldStrippedOnRadioOnly(t *testing.T) {
	r := testResolver()

	// On radio, channel is identity and never published.
	m, err := r.Resolve(RawEvent{
		Channel:    ChannelRadio,
		ReceivedAt: time.Now(),
		Fields:     decode(t, `{"model": "Acurite-Tower", "id": 1234, "channel": 1, "temperature_C": 18.2}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := m.Fields["channel"]; ok {
		t.Errorf("radio Fields = %v, channel should be stripped", m.Fields)
	}

	// A TCP sensor's channel field is just data.
	m, err = r.Resolve(RawEvent{
		Channel:    ChannelTCP,
		ReceivedAt: time.Now(),
		Fields:     decode(t, `{"model": "UnoR4_WiFi_Sensor", "id": "workshop", "channel": 6, "rssi": -67}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got, ok := m.Fields["channel"]; !ok || got != 6.0 {
		t.Errorf("tcp Fields[channel] = %v, want 6", got)
	}
}

func TestResolve_RadioKeyFallbacks(t *testing.T) {
	r := testResolver()

	tests := []struct {
		name    string
		payload string
		wantKey DeviceKey
	}{
		{
			name:    "id preferred",
			payload: `{"model": "Acurite-Tower", "id": 1234, "channel": 1}`,
			wantKey: "radio:Acurite-Tower:1234",
		},
		{
			name:    "channel when no id",
			payload: `{"model": "Oregon-THN132N", "channel": 3}`,
			wantKey: "radio:Oregon-THN132N:3",
		},
		{
			name:    "zero when neither",
			payload: `{"model": "Generic-Remote"}`,
			wantKey: "radio:Generic-Remote:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Resolve(RawEvent{
				Channel:    ChannelRadio,
				ReceivedAt: time.Now(),
				Fields:     decode(t, tt.payload),
			})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if m.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", m.Key, tt.wantKey)
			}
		})
	}
}

func TestResolve_System(t *testing.T) {
	r := testResolver()

	m, err := r.Resolve(RawEvent{
		Channel:    ChannelSystem,
		ReceivedAt: time.Now(),
		Fields:     map[string]any{"cpu_percent": 12.5},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if m.Key != "system:bridge-a1b2c3" {
		t.Errorf("Key = %q, want %q", m.Key, "system:bridge-a1b2c3")
	}
	if m.DisplayName != "Workshop Bridge" {
		t.Errorf("DisplayName = %q, want %q", m.DisplayName, "Workshop Bridge")
	}
}

func TestResolve_Malformed(t *testing.T) {
	r := testResolver()

	tests := []struct {
		name    string
		channel Channel
		payload string
	}{
		{
			name:    "tcp missing id",
			channel: ChannelTCP,
			payload: `{"model": "UnoR4_WiFi_Sensor", "temperature_C": 21.5}`,
		},
		{
			name:    "tcp missing model",
			channel: ChannelTCP,
			payload: `{"id": "workshop", "temperature_C": 21.5}`,
		},
		{
			name:    "radio missing model",
			channel: ChannelRadio,
			payload: `{"id": 5, "temperature_C": 21.5}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(RawEvent{
				Channel:    tt.channel,
				ReceivedAt: time.Now(),
				Fields:     decode(t, tt.payload),
			})
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Resolve() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestResolve_UnknownChannel(t *testing.T) {
	r := testResolver()

	_, err := r.Resolve(RawEvent{
		Channel:    Channel("zigbee"),
		ReceivedAt: time.Now(),
		Fields:     map[string]any{"model": "x", "id": "y"},
	})
	if !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Resolve() error = %v, want ErrUnknownChannel", err)
	}
}

func TestResolve_Filters(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []string
		blacklist []string
		model     string
		wantDrop  bool
	}{
		{
			name:     "no filters admits all",
			model:    "Anything",
			wantDrop: false,
		},
		{
			name:      "whitelist match admitted",
			whitelist: []string{"Acurite-*"},
			model:     "Acurite-Tower",
			wantDrop:  false,
		},
		{
			name:      "whitelist miss dropped",
			whitelist: []string{"Acurite-*"},
			model:     "Oregon-THN132N",
			wantDrop:  true,
		},
		{
			name:      "blacklist match dropped",
			blacklist: []string{"Oregon-*"},
			model:     "Oregon-THN132N",
			wantDrop:  true,
		},
		{
			name:      "blacklist wins over whitelist",
			whitelist: []string{"*"},
			blacklist: []string{"Oregon-*"},
			model:     "Oregon-THN132N",
			wantDrop:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(Config{
				BridgeID:  "bridge-test",
				Whitelist: tt.whitelist,
				Blacklist: tt.blacklist,
			})

			_, err := r.Resolve(RawEvent{
				Channel:    ChannelRadio,
				ReceivedAt: time.Now(),
				Fields:     map[string]any{"model": tt.model, "id": "1"},
			})

			dropped := errors.Is(err, ErrDeviceFiltered)
			if dropped != tt.wantDrop {
				t.Errorf("filtered = %v, want %v (err = %v)", dropped, tt.wantDrop, err)
			}
		})
	}
}

func TestResolve_FlattensNestedObjects(t *testing.T) {
	r := testResolver()

	m, err := r.Resolve(RawEvent{
		Channel:    ChannelTCP,
		ReceivedAt: time.Now(),
		Fields: decode(t, `{
			"model": "WeatherHub",
			"id": "roof",
			"wind": {"dir_deg": 90, "avg_km_h": 12.4}
		}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got, ok := m.Fields["wind_dir_deg"].(float64); !ok || got != 90 {
		t.Errorf("Fields[wind_dir_deg] = %v, want 90", m.Fields["wind_dir_deg"])
	}
	if got, ok := m.Fields["wind_avg_km_h"].(float64); !ok || got != 12.4 {
		t.Errorf("Fields[wind_avg_km_h] = %v, want 12.4", m.Fields["wind_avg_km_h"])
	}
}

func TestResolve_SkipKeys(t *testing.T) {
	r := testResolver()

	m, err := r.Resolve(RawEvent{
		Channel:    ChannelRadio,
		ReceivedAt: time.Now(),
		Fields: decode(t, `{
			"model": "TempHum1",
			"id": 5,
			"time": "2026-02-14 10:00:00",
			"mic": "CHECKSUM",
			"protocol": 40,
			"temperature_C": 21.4
		}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	for _, skipped := range []string{"time", "mic", "protocol"} {
		if _, ok := m.Fields[skipped]; ok {
			t.Errorf("skip key %q leaked into fields", skipped)
		}
	}
	if len(m.Fields) != 1 {
		t.Errorf("Fields = %v, want only temperature_C", m.Fields)
	}
}

func TestResolve_FahrenheitNormalised(t *testing.T) {
	r := testResolver()

	m, err := r.Resolve(RawEvent{
		Channel:    ChannelRadio,
		ReceivedAt: time.Now(),
		Fields:     decode(t, `{"model": "Acurite-Tower", "id": 1234, "temperature_F": 70.7}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if _, ok := m.Fields["temperature_F"]; ok {
		t.Error("temperature_F should be replaced by temperature_C")
	}
	got, ok := m.Fields["temperature_C"].(float64)
	if !ok {
		t.Fatalf("temperature_C missing, fields = %v", m.Fields)
	}
	if math.Abs(got-21.5) > 0.01 {
		t.Errorf("temperature_C = %v, want ~21.5", got)
	}
}

func TestResolve_DewPoint(t *testing.T) {
	r := NewResolver(Config{
		BridgeID: "bridge-test",
		DewPoint: true,
	})

	m, err := r.Resolve(RawEvent{
		Channel:    ChannelTCP,
		ReceivedAt: time.Now(),
		Fields:     decode(t, `{"model": "UnoR4_WiFi_Sensor", "id": "w", "temperature_C": 20, "humidity": 50}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	dp, ok := m.Fields["dew_point"].(float64)
	if !ok {
		t.Fatalf("dew_point missing, fields = %v", m.Fields)
	}
	// Magnus formula gives ~9.3 C at 20 C / 50% RH.
	if math.Abs(dp-9.3) > 0.2 {
		t.Errorf("dew_point = %v, want ~9.3", dp)
	}
}

func TestResolve_DewPointDisabledByDefault(t *testing.T) {
	r := testResolver()

	m, err := r.Resolve(RawEvent{
		Channel:    ChannelTCP,
		ReceivedAt: time.Now(),
		Fields:     decode(t, `{"model": "UnoR4_WiFi_Sensor", "id": "w", "temperature_C": 20, "humidity": 50}`),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if _, ok := m.Fields["dew_point"]; ok {
		t.Error("dew_point should not be derived when disabled")
	}
}

func TestDeviceKey_Slug(t *testing.T) {
	tests := []struct {
		key  DeviceKey
		want string
	}{
		{key: "radio:TempHum1:5", want: "radio_temphum1_5"},
		{key: "tcp:UnoR4_WiFi_Sensor:workshop", want: "tcp_unor4_wifi_sensor_workshop"},
		{key: "system:bridge-a1b2c3", want: "system_bridge_a1b2c3"},
	}

	for _, tt := range tests {
		if got := tt.key.Slug(); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDeviceKey_Channel(t *testing.T) {
	if got := DeviceKey("radio:TempHum1:5").Channel(); got != ChannelRadio {
		t.Errorf("Channel() = %q, want %q", got, ChannelRadio)
	}
	if got := DeviceKey("system:bridge-x").Channel(); got != ChannelSystem {
		t.Errorf("Channel() = %q, want %q", got, ChannelSystem)
	}
}
