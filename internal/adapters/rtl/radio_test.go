package rtl

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

type recordSink struct {
	mu     sync.Mutex
	events []ingest.RawEvent
}

func (s *recordSink) EnqueueDropOldest(ev ingest.RawEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RadioConfig
		want string
	}{
		{
			name: "frequency only",
			cfg:  config.RadioConfig{Frequency: 433920000, Device: -1},
			want: "-f 433920000 -F json -M time:iso -M protocol -M level",
		},
		{
			name: "sample rate and device index",
			cfg:  config.RadioConfig{Frequency: 868300000, SampleRate: 1024000, Device: 1},
			want: "-f 868300000 -F json -M time:iso -M protocol -M level -s 1024000 -d :1",
		},
		{
			name: "extra args appended",
			cfg: config.RadioConfig{
				Frequency: 433920000,
				Device:    -1,
				ExtraArgs: []string{"-R", "40"},
			},
			want: "-f 433920000 -F json -M time:iso -M protocol -M level -R 40",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(buildArgs(tt.cfg), " ")
			if got != tt.want {
				t.Errorf("buildArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFromStderr(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "usb_open error -3", want: StatusNoDevice},
		{line: "No supported devices found.", want: StatusNoDevice},
		{line: "Kernel driver is active, or device is claimed by second instance", want: StatusUSBBusy},
		{line: "usb_claim_interface error LIBUSB_ERROR_BUSY", want: StatusUSBBusy},
		{line: "Found Rafael Micro R820T tuner", want: ""},
		{line: "", want: ""},
	}

	for _, tt := range tests {
		if got := statusFromStderr(tt.line); got != tt.want {
			t.Errorf("statusFromStderr(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestHandleStdout_EnqueuesEvents(t *testing.T) {
	sink := &recordSink{}
	r := NewRadio(config.RadioConfig{Name: "ism433", Frequency: 433920000, Device: -1}, sink)

	r.handleStdout(`{"model": "TempHum1", "id": 5, "temperature_C": 21.4}`)

	if sink.len() != 1 {
		t.Fatalf("enqueued %d events, want 1", sink.len())
	}
	ev := sink.events[0]
	if ev.Channel != ingest.ChannelRadio {
		t.Errorf("Channel = %q, want %q", ev.Channel, ingest.ChannelRadio)
	}
	if ev.Fields["model"] != "TempHum1" {
		t.Errorf("Fields[model] = %v, want TempHum1", ev.Fields["model"])
	}

	// Decoded traffic flips the radio online.
	if r.Status() != StatusOnline {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOnline)
	}
}

func TestHandleStdout_IgnoresBanners(t *testing.T) {
	sink := &recordSink{}
	r := NewRadio(config.RadioConfig{Frequency: 433920000, Device: -1}, sink)

	r.handleStdout("rtl_433 version 23.11")
	r.handleStdout("")

	if sink.len() != 0 {
		t.Errorf("banner lines enqueued %d events, want 0", sink.len())
	}
	if r.Malformed() != 0 {
		t.Errorf("Malformed() = %d, want 0 for non-JSON banners", r.Malformed())
	}
}

func TestHandleStdout_CountsMalformed(t *testing.T) {
	sink := &recordSink{}
	r := NewRadio(config.RadioConfig{Frequency: 433920000, Device: -1}, sink)

	r.handleStdout(`{"model": "TempHum1", broken`)

	if sink.len() != 0 {
		t.Errorf("malformed line enqueued %d events, want 0", sink.len())
	}
	if r.Malformed() != 1 {
		t.Errorf("Malformed() = %d, want 1", r.Malformed())
	}
}

func TestStatusTransitions(t *testing.T) {
	sink := &recordSink{}
	r := NewRadio(config.RadioConfig{Name: "ism433", Frequency: 433920000, Device: -1}, sink)

	var mu sync.Mutex
	var transitions []string
	r.SetOnStatusChange(func(name, status string) {
		mu.Lock()
		transitions = append(transitions, status)
		mu.Unlock()
	})

	if r.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", r.Status(), StatusStopped)
	}

	r.setStatus(StatusScanning)
	r.setStatus(StatusScanning) // No duplicate callback
	r.handleStdout(`{"model": "TempHum1", "id": 5}`)

	mu.Lock()
	defer mu.Unlock()
	want := []string{StatusScanning, StatusOnline}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestHandleStop_PreservesDiagnosis(t *testing.T) {
	sink := &recordSink{}
	r := NewRadio(config.RadioConfig{Frequency: 433920000, Device: -1}, sink)

	// stderr diagnosed a missing dongle before the process died.
	r.handleStderr("usb_open error -3")
	r.handleStop(errExit)

	if r.Status() != StatusNoDevice {
		t.Errorf("Status() = %q, want %q preserved", r.Status(), StatusNoDevice)
	}
}

func TestHandleStop_MarksCrashed(t *testing.T) {
	sink := &recordSink{}
	r := NewRadio(config.RadioConfig{Frequency: 433920000, Device: -1}, sink)

	r.setStatus(StatusOnline)
	r.handleStop(errExit)

	if r.Status() != StatusCrashed {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusCrashed)
	}
}

func TestSupervisor_Statuses(t *testing.T) {
	sink := &recordSink{}
	s := NewSupervisor([]config.RadioConfig{
		{Name: "ism433", Frequency: 433920000, Device: -1},
		{Name: "ism868", Frequency: 868300000, Device: -1},
	}, sink)

	statuses := s.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %v, want 2 radios", statuses)
	}
	for name, status := range statuses {
		if status != StatusStopped {
			t.Errorf("radio %q status = %q, want %q", name, status, StatusStopped)
		}
	}
}

func TestNewRadio_Defaults(t *testing.T) {
	r := NewRadio(config.RadioConfig{Frequency: 433920000, Device: -1}, &recordSink{})

	if r.Name() != "radio" {
		t.Errorf("Name() = %q, want %q", r.Name(), "radio")
	}
	if r.cfg.Binary != defaultBinary {
		t.Errorf("Binary = %q, want %q", r.cfg.Binary, defaultBinary)
	}
}

// errExit stands in for an unexpected process exit.
var errExit = errors.New("exit status 1")
