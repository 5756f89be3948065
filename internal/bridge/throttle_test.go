package bridge

import (
	"testing"
	"time"

	"github.com/halnode/rtl-bridge/internal/ingest"
)

func reading(ts time.Time, fields map[string]any) ingest.Measurement {
	return ingest.Measurement{
		Key:       "radio:TempHum1:5",
		Model:     "TempHum1",
		Timestamp: ts,
		Fields:    fields,
	}
}

func TestThrottler_Disabled(t *testing.T) {
	tr := newThrottler(0)
	base := time.Now()

	for i := 0; i < 3; i++ {
		m, due := tr.Add(reading(base.Add(time.Duration(i)*time.Second), map[string]any{"temperature_C": 21.0}))
		if !due {
			t.Fatalf("reading %d suppressed with throttling disabled", i)
		}
		if m.Fields["temperature_C"] != 21.0 {
			t.Errorf("reading %d fields altered: %v", i, m.Fields)
		}
	}
}

func TestThrottler_FirstReadingImmediate(t *testing.T) {
	tr := newThrottler(time.Minute)

	if _, due := tr.Add(reading(time.Now(), map[string]any{"temperature_C": 21.0})); !due {
		t.Error("first reading should publish immediately")
	}
}

func TestThrottler_AveragesWindow(t *testing.T) {
	tr := newThrottler(time.Minute)
	base := time.Now()

	tr.Add(reading(base, map[string]any{"temperature_C": 20.0}))

	// Suppressed within the window.
	if _, due := tr.Add(reading(base.Add(20*time.Second), map[string]any{"temperature_C": 22.0})); due {
		t.Error("reading inside the window should be suppressed")
	}
	if _, due := tr.Add(reading(base.Add(40*time.Second), map[string]any{"temperature_C": 24.0})); due {
		t.Error("reading inside the window should be suppressed")
	}

	// The window closes: 22, 24 and 26 are averaged.
	m, due := tr.Add(reading(base.Add(61*time.Second), map[string]any{"temperature_C": 26.0}))
	if !due {
		t.Fatal("reading past the window should publish")
	}
	got := m.Fields["temperature_C"].(float64)
	if got != 24.0 {
		t.Errorf("averaged temperature_C = %v, want 24", got)
	}
}

func TestThrottler_NonNumericKeepsLatest(t *testing.T) {
	tr := newThrottler(time.Minute)
	base := time.Now()

	tr.Add(reading(base, map[string]any{"state": "closed"}))
	tr.Add(reading(base.Add(10*time.Second), map[string]any{"state": "open"}))

	m, due := tr.Add(reading(base.Add(61*time.Second), map[string]any{"state": "closed"}))
	if !due {
		t.Fatal("reading past the window should publish")
	}
	if m.Fields["state"] != "closed" {
		t.Errorf("state = %v, want the closing reading's value", m.Fields["state"])
	}
}

func TestThrottler_PerDeviceWindows(t *testing.T) {
	tr := newThrottler(time.Minute)
	base := time.Now()

	tr.Add(reading(base, map[string]any{"temperature_C": 20.0}))

	other := ingest.Measurement{
		Key:       "tcp:UnoR4_WiFi_Sensor:workshop",
		Timestamp: base.Add(time.Second),
		Fields:    map[string]any{"humidity": 47.0},
	}
	if _, due := tr.Add(other); !due {
		t.Error("a different device must not share the throttle window")
	}
}

func TestThrottler_FieldOnlyInSuppressedReading(t *testing.T) {
	tr := newThrottler(time.Minute)
	base := time.Now()

	tr.Add(reading(base, map[string]any{"temperature_C": 20.0}))
	tr.Add(reading(base.Add(10*time.Second), map[string]any{"temperature_C": 21.0, "humidity": 50.0}))

	m, due := tr.Add(reading(base.Add(61*time.Second), map[string]any{"temperature_C": 22.0}))
	if !due {
		t.Fatal("reading past the window should publish")
	}
	if _, ok := m.Fields["humidity"]; !ok {
		t.Error("field seen only in a suppressed reading was lost")
	}
}
