package sysmon

import (
	"context"
	"testing"
	"time"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

type chanSink struct {
	events chan ingest.RawEvent
}

func (s *chanSink) TryEnqueue(ev ingest.RawEvent) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func TestCollect_RequiredFields(t *testing.T) {
	c := NewCollector(config.SystemMonConfig{Enabled: true, Interval: 60}, &chanSink{})

	fields := c.collect()

	for _, name := range []string{"cpu_percent", "memory_percent", "disk_percent", "uptime_s"} {
		v, ok := fields[name]
		if !ok {
			t.Errorf("collect() missing %q", name)
			continue
		}
		f, ok := v.(float64)
		if !ok {
			t.Errorf("%q = %T, want float64", name, v)
			continue
		}
		if f < 0 {
			t.Errorf("%q = %v, want >= 0", name, f)
		}
	}

	for _, name := range []string{"cpu_percent", "memory_percent", "disk_percent"} {
		if f := fields[name].(float64); f > 100 {
			t.Errorf("%q = %v, want <= 100", name, f)
		}
	}
}

func TestRun_EmitsSamples(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 4)}
	c := NewCollector(config.SystemMonConfig{Enabled: true, Interval: 3600}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// The first sample is immediate, no need to wait for the ticker.
	select {
	case ev := <-sink.events:
		if ev.Channel != ingest.ChannelSystem {
			t.Errorf("Channel = %q, want %q", ev.Channel, ingest.ChannelSystem)
		}
		if _, ok := ev.Fields["memory_percent"]; !ok {
			t.Error("sample missing memory_percent")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no sample emitted")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}
