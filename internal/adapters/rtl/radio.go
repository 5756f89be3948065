package rtl

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/ingest"
	"github.com/halnode/rtl-bridge/internal/process"
)

// Radio status values, published verbatim as the bridge's
// radio_status entity so the dashboard shows why a radio is silent.
const (
	StatusStopped  = "Stopped"
	StatusScanning = "Scanning"
	StatusOnline   = "Online"
	StatusCrashed  = "Crashed"
	StatusNoDevice = "No Device Found"
	StatusUSBBusy  = "USB Busy"
)

// defaultBinary is used when the config leaves the rtl_433 path empty.
const defaultBinary = "rtl_433"

// Sink receives decoded events from the radio.
// Satisfied by *ingest.Queue.
type Sink interface {
	EnqueueDropOldest(ev ingest.RawEvent)
}

// Logger defines the logging interface used by the radio.
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

// Radio supervises one rtl_433 decoder process and turns its JSON
// stdout into raw radio events.
//
// Radio hardware fails in recognisable ways; the stderr stream is
// watched for the known failure signatures so the status entity can
// say "No Device Found" instead of a generic crash.
type Radio struct {
	cfg     config.RadioConfig
	sink    Sink
	logger  Logger
	manager *process.Manager

	mu       sync.Mutex
	status   string
	onStatus func(name, status string)

	malformed atomic.Uint64
}

// NewRadio creates a radio supervisor for one rtl_433 instance.
func NewRadio(cfg config.RadioConfig, sink Sink) *Radio {
	if cfg.Name == "" {
		cfg.Name = "radio"
	}
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}

	r := &Radio{
		cfg:    cfg,
		sink:   sink,
		logger: noopLogger{},
		status: StatusStopped,
	}

	mgrCfg := process.DefaultConfig("rtl433-"+cfg.Name, cfg.Binary, buildArgs(cfg))
	mgrCfg.StdoutLineHandler = r.handleStdout
	mgrCfg.StderrLineHandler = r.handleStderr
	mgrCfg.OnStart = func() { r.setStatus(StatusScanning) }
	mgrCfg.OnStop = r.handleStop
	r.manager = process.NewManager(mgrCfg)

	return r
}

// SetLogger sets the logger for the radio and its process manager.
func (r *Radio) SetLogger(logger Logger) {
	r.logger = logger
	r.manager.SetLogger(logger)
}

// SetOnStatusChange registers a callback fired whenever the radio's
// status transitions. The callback runs on the manager's goroutines;
// keep it non-blocking.
func (r *Radio) SetOnStatusChange(fn func(name, status string)) {
	r.mu.Lock()
	r.onStatus = fn
	r.mu.Unlock()
}

// Name returns the radio's configured label.
func (r *Radio) Name() string {
	return r.cfg.Name
}

// Status returns the radio's current status string.
func (r *Radio) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Malformed returns the number of stdout lines rejected as invalid JSON.
func (r *Radio) Malformed() uint64 {
	return r.malformed.Load()
}

// Start launches the rtl_433 process.
func (r *Radio) Start(ctx context.Context) error {
	return r.manager.Start(ctx)
}

// Stop terminates the rtl_433 process.
func (r *Radio) Stop() error {
	err := r.manager.Stop()
	r.setStatus(StatusStopped)
	return err
}

// buildArgs assembles the rtl_433 command line: JSON output with ISO
// timestamps, protocol numbers and signal level metadata.
func buildArgs(cfg config.RadioConfig) []string {
	args := []string{
		"-f", strconv.FormatInt(cfg.Frequency, 10),
		"-F", "json",
		"-M", "time:iso",
		"-M", "protocol",
		"-M", "level",
	}
	if cfg.SampleRate > 0 {
		args = append(args, "-s", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Device >= 0 {
		args = append(args, "-d", ":"+strconv.Itoa(cfg.Device))
	}
	return append(args, cfg.ExtraArgs...)
}

func (r *Radio) handleStdout(line string) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		// rtl_433 prints banners and decoder listings to stdout too.
		r.logger.Debug("rtl_433 output", "radio", r.cfg.Name, "line", line)
		return
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		r.malformed.Add(1)
		r.logger.Warn("invalid json from rtl_433",
			"radio", r.cfg.Name,
			"error", err)
		return
	}

	// Decoded traffic proves the dongle works.
	r.setStatus(StatusOnline)

	r.sink.EnqueueDropOldest(ingest.RawEvent{
		Channel:    ingest.ChannelRadio,
		Fields:     fields,
		ReceivedAt: time.Now(),
	})
}

func (r *Radio) handleStderr(line string) {
	if status := statusFromStderr(line); status != "" {
		r.setStatus(status)
	}
	r.logger.Debug("rtl_433 stderr", "radio", r.cfg.Name, "line", line)
}

// handleStop marks the radio crashed unless stderr already diagnosed
// a more specific failure, and leaves Stopped alone for clean stops.
func (r *Radio) handleStop(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	diagnosed := r.status == StatusNoDevice || r.status == StatusUSBBusy
	r.mu.Unlock()
	if !diagnosed {
		r.setStatus(StatusCrashed)
	}
}

// statusFromStderr maps known rtl_433/librtlsdr failure signatures to
// status strings. Returns "" for unrecognised lines.
func statusFromStderr(line string) string {
	switch {
	case strings.Contains(line, "usb_open error"),
		strings.Contains(line, "No supported devices"):
		return StatusNoDevice
	case strings.Contains(line, "Kernel driver is active"),
		strings.Contains(line, "LIBUSB_ERROR_BUSY"):
		return StatusUSBBusy
	default:
		return ""
	}
}

func (r *Radio) setStatus(status string) {
	r.mu.Lock()
	if r.status == status {
		r.mu.Unlock()
		return
	}
	r.status = status
	fn := r.onStatus
	r.mu.Unlock()

	r.logger.Info("radio status changed",
		"radio", r.cfg.Name,
		"status", status)

	if fn != nil {
		fn(r.cfg.Name, status)
	}
}
