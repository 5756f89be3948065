package bridge

import (
	"time"

	"github.com/halnode/rtl-bridge/internal/ingest"
)

// throttler rate-limits publishing per device without losing
// information: numeric fields are averaged across the suppressed
// readings and non-numeric fields keep their latest value.
//
// Identity resolution and availability are not throttled; only the
// outbound state/archive publishes are. Owned by the engine goroutine,
// no locking.
type throttler struct {
	interval time.Duration
	lastEmit map[ingest.DeviceKey]time.Time
	pending  map[ingest.DeviceKey]*aggregate
}

type aggregate struct {
	latest ingest.Measurement
	sums   map[string]float64
	counts map[string]int
}

func newThrottler(interval time.Duration) *throttler {
	return &throttler{
		interval: interval,
		lastEmit: make(map[ingest.DeviceKey]time.Time),
		pending:  make(map[ingest.DeviceKey]*aggregate),
	}
}

// Add offers a measurement to the throttler.
//
// Returns:
//   - ingest.Measurement: The measurement to publish, with numeric
//     fields averaged over the window
//   - bool: false if the measurement was absorbed into the window
func (t *throttler) Add(m ingest.Measurement) (ingest.Measurement, bool) {
	if t.interval <= 0 {
		return m, true
	}

	last, seen := t.lastEmit[m.Key]
	if seen && m.Timestamp.Sub(last) < t.interval {
		t.accumulate(m)
		return ingest.Measurement{}, false
	}

	out := t.drain(m)
	t.lastEmit[m.Key] = m.Timestamp
	return out, true
}

// accumulate folds a suppressed measurement into the device's window.
func (t *throttler) accumulate(m ingest.Measurement) {
	agg, ok := t.pending[m.Key]
	if !ok {
		agg = &aggregate{
			sums:   make(map[string]float64),
			counts: make(map[string]int),
		}
		t.pending[m.Key] = agg
	}

	agg.latest = m
	for k, v := range m.Fields {
		if f, isNum := v.(float64); isNum {
			agg.sums[k] += f
			agg.counts[k]++
		}
	}
}

// drain merges the pending window with the closing measurement and
// clears it.
func (t *throttler) drain(m ingest.Measurement) ingest.Measurement {
	agg, ok := t.pending[m.Key]
	if !ok {
		return m
	}
	delete(t.pending, m.Key)

	out := m
	out.Fields = make(map[string]any, len(m.Fields))
	for k, v := range m.Fields {
		out.Fields[k] = v
	}

	for k, v := range out.Fields {
		f, isNum := v.(float64)
		if !isNum {
			continue
		}
		if count, have := agg.counts[k]; have {
			out.Fields[k] = (agg.sums[k] + f) / float64(count+1)
		}
	}

	// Carry fields that only appeared in suppressed readings.
	for k, v := range agg.latest.Fields {
		if _, have := out.Fields[k]; !have {
			out.Fields[k] = v
		}
	}

	return out
}
