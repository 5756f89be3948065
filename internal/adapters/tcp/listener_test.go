package tcp

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// chanSink exposes enqueued events on a channel.
type chanSink struct {
	events chan ingest.RawEvent
	full   atomic.Bool
}

func (s *chanSink) TryEnqueue(ev ingest.RawEvent) bool {
	if s.full.Load() {
		return false
	}
	s.events <- ev
	return true
}

func (s *chanSink) Full() bool {
	return s.full.Load()
}

func startListener(t *testing.T, sink Sink) (*Listener, net.Addr, context.CancelFunc) {
	t.Helper()

	cfg := config.TCPConfig{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0, // Ephemeral port for tests
		MaxLineBytes: 16384,
		ReadTimeout:  5,
	}

	l := NewListener(cfg, sink)

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		l.Wait()
	})

	return l, l.Addr(), cancel
}

func TestListener_DeliversEvents(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 8)}
	_, addr, _ := startListener(t, sink)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := `{"model": "UnoR4_WiFi_Sensor", "id": "workshop", "temperature_C": 21.5}` + "\n"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-sink.events:
		if ev.Channel != ingest.ChannelTCP {
			t.Errorf("Channel = %q, want %q", ev.Channel, ingest.ChannelTCP)
		}
		if ev.Fields["model"] != "UnoR4_WiFi_Sensor" {
			t.Errorf("Fields[model] = %v, want UnoR4_WiFi_Sensor", ev.Fields["model"])
		}
		if ev.ReceivedAt.IsZero() {
			t.Error("ReceivedAt is zero")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestListener_MultipleLinesOneConnection(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 8)}
	_, addr, _ := startListener(t, sink)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	lines := "{\"model\": \"A\", \"id\": 1}\n{\"model\": \"B\", \"id\": 2}\n"
	if _, err := conn.Write([]byte(lines)); err != nil {
		t.Fatalf("write: %v", err)
	}

	for i, wantModel := range []string{"A", "B"} {
		select {
		case ev := <-sink.events:
			if ev.Fields["model"] != wantModel {
				t.Errorf("event %d model = %v, want %q", i, ev.Fields["model"], wantModel)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d not received", i)
		}
	}
}

func TestListener_MalformedLineSkipped(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 8)}
	l, addr, _ := startListener(t, sink)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A broken line must not take down the connection or block the
	// valid line behind it.
	if _, err := conn.Write([]byte("not json at all\n{\"model\": \"C\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-sink.events:
		if ev.Fields["model"] != "C" {
			t.Errorf("model = %v, want C", ev.Fields["model"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid event after malformed line not received")
	}

	if l.Malformed() != 1 {
		t.Errorf("Malformed() = %d, want 1", l.Malformed())
	}
}

func TestListener_QueueFullSheds(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 8)}
	_, addr, _ := startListener(t, sink)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The queue filling mid-connection sheds events but must not error
	// the established connection.
	sink.full.Store(true)
	if _, err := conn.Write([]byte("{\"model\": \"D\"}\n")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := conn.Write([]byte("{\"model\": \"E\"}\n")); err != nil {
		t.Fatalf("second write after shed: %v", err)
	}
}

func TestListener_QueueFullRejectsNewConnections(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 8)}
	sink.full.Store(true)
	_, addr, _ := startListener(t, sink)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The listener closes the connection instead of reading from it.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // Test deadline
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("Read() succeeded, want connection closed by listener")
	}
}

func TestListener_StartTwiceFails(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 1)}
	l, _, _ := startListener(t, sink)

	if err := l.Start(context.Background()); err == nil {
		t.Error("second Start() expected error, got nil")
	}
}

func TestListener_ShutdownClosesConnections(t *testing.T) {
	sink := &chanSink{events: make(chan ingest.RawEvent, 8)}
	l, addr, cancel := startListener(t, sink)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cancel()

	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not drain after cancel")
	}
}
