package bridge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/halnode/rtl-bridge/internal/device"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// commandBuffer bounds the command channel feeding the engine from
// MQTT callbacks.
const commandBuffer = 16

// Announcer publishes and retracts Home Assistant discovery configs.
// Satisfied by *discovery.Announcer.
type Announcer interface {
	Announce(rec device.Record, entities []device.Entity) error
	Retract(rec device.Record) error
}

// StatePublisher pushes readings to state topics.
// Satisfied by *discovery.StatePublisher.
type StatePublisher interface {
	Publish(m ingest.Measurement)
	RepublishAll()
	Forget(key ingest.DeviceKey)
}

// AvailabilityTracker maintains the retained availability flags.
// Satisfied by *availability.Tracker.
type AvailabilityTracker interface {
	MarkOnline(rec device.Record) error
	Sweep(now time.Time) int
}

// ArchiveWriter records readings in long-term storage.
// Satisfied by *influxdb.Client.
type ArchiveWriter interface {
	WriteReading(deviceKey, model, channel string, fields map[string]any, timestamp time.Time)
}

// Logger defines the logging interface used by the engine.
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

// Options wires the engine's collaborators.
type Options struct {
	Queue     *ingest.Queue
	Resolver  *ingest.Resolver
	Registry  *device.Registry
	Announcer Announcer
	States    StatePublisher
	Tracker   AvailabilityTracker

	// Archive is optional; nil disables long-term storage.
	Archive ArchiveWriter

	// SweepInterval is how often stale devices are checked.
	SweepInterval time.Duration

	// ThrottleInterval rate-limits per-device publishing; 0 disables.
	ThrottleInterval time.Duration

	// ShutdownGrace bounds queue draining after cancellation.
	ShutdownGrace time.Duration

	// MultiRadio switches radio status fields to per-radio names.
	MultiRadio bool
}

type commandKind int

const (
	cmdCleanup commandKind = iota
	cmdReconnect
)

type command struct {
	kind    commandKind
	payload string
}

// Engine is the single consumer of the event queue.
//
// Everything stateful - the registry, the throttler, discovery
// bookkeeping - is touched only from the Run goroutine. Producers and
// MQTT callbacks talk to the engine exclusively through the queue and
// the command channel, which is what makes the pipeline free of locks
// around its hot path.
type Engine struct {
	opts     Options
	logger   Logger
	throttle *throttler
	commands chan command

	// malformed counts events the resolver rejected. Engine goroutine
	// only; adapter-side parse failures come in via malformedSources.
	malformed        uint64
	malformedSources []func() uint64
}

// New creates an engine from its wired collaborators.
func New(opts Options) *Engine {
	return &Engine{
		opts:     opts,
		logger:   noopLogger{},
		throttle: newThrottler(opts.ThrottleInterval),
		commands: make(chan command, commandBuffer),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// AddMalformedSource registers an adapter's malformed-line counter so
// the bridge's events_malformed entity covers parse failures wherever
// they happen.
func (e *Engine) AddMalformedSource(fn func() uint64) {
	e.malformedSources = append(e.malformedSources, fn)
}

// EnqueueCleanup requests removal of a device by key. Safe to call
// from MQTT handler goroutines.
func (e *Engine) EnqueueCleanup(key string) {
	select {
	case e.commands <- command{kind: cmdCleanup, payload: key}:
	default:
		e.logger.Warn("command channel full, dropping cleanup", "key", key)
	}
}

// NotifyReconnect requests a state replay after a broker reconnect.
// Safe to call from MQTT callback goroutines.
func (e *Engine) NotifyReconnect() {
	select {
	case e.commands <- command{kind: cmdReconnect}:
	default:
	}
}

// NotifyRadioStatus feeds a radio status transition into the pipeline
// as a system event, surfacing it as a bridge diagnostic entity.
// Safe to call from process manager goroutines.
func (e *Engine) NotifyRadioStatus(name, status string) {
	ev := ingest.RawEvent{
		Channel:    ingest.ChannelSystem,
		ReceivedAt: time.Now(),
		Fields:     map[string]any{e.radioStatusField(name): status},
	}
	if !e.opts.Queue.TryEnqueue(ev) {
		e.logger.Warn("event queue full, shedding radio status", "radio", name)
	}
}

func (e *Engine) radioStatusField(name string) string {
	if e.opts.MultiRadio {
		return "radio_status_" + name
	}
	return "radio_status"
}

// Run consumes the queue until the context is cancelled, then drains
// what is left within the shutdown grace period.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("engine started",
		"sweep_interval", e.opts.SweepInterval,
		"throttle_interval", e.opts.ThrottleInterval)

	sweep := time.NewTicker(e.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.logger.Info("engine stopped")
			return
		case ev := <-e.opts.Queue.Events():
			e.handleRaw(ev)
		case cmd := <-e.commands:
			e.handleCommand(cmd)
		case <-sweep.C:
			if n := e.opts.Tracker.Sweep(time.Now()); n > 0 {
				e.logger.Info("availability sweep", "offline", n)
			}
		}
	}
}

// drain processes already-queued events so a restart doesn't throw
// away readings that made it into the bridge.
func (e *Engine) drain() {
	deadline := time.Now().Add(e.opts.ShutdownGrace)
	for time.Now().Before(deadline) {
		select {
		case ev := <-e.opts.Queue.Events():
			e.handleRaw(ev)
		default:
			return
		}
	}
}

// handleRaw runs one raw event through the pipeline:
// resolve, track, announce, mark available, publish, archive.
func (e *Engine) handleRaw(ev ingest.RawEvent) {
	if ev.Channel == ingest.ChannelSystem {
		e.injectCounters(ev.Fields)
	}

	m, err := e.opts.Resolver.Resolve(ev)
	switch {
	case errors.Is(err, ingest.ErrDeviceFiltered):
		e.logger.Debug("event filtered", "error", err)
		return
	case err != nil:
		e.malformed++
		e.logger.Warn("unresolvable event",
			"channel", string(ev.Channel),
			"error", err)
		return
	}

	devEv := e.opts.Registry.Observe(m)

	if !devEv.Record.DiscoveryPublished {
		entities := devEv.NewEntities
		if devEv.Kind == device.EventUnchanged {
			// A previous announce failed; retry the full set.
			entities = devEv.Record.Entities
		}
		if err := e.opts.Announcer.Announce(devEv.Record, entities); err != nil {
			e.logger.Warn("discovery publish failed",
				"key", string(m.Key),
				"error", err)
		} else if err := e.opts.Registry.MarkDiscoveryPublished(m.Key); err != nil {
			e.logger.Warn("marking discovery published failed",
				"key", string(m.Key),
				"error", err)
		}
	}

	if err := e.opts.Tracker.MarkOnline(devEv.Record); err != nil {
		e.logger.Warn("availability update failed",
			"key", string(m.Key),
			"error", err)
	}

	out, due := e.throttle.Add(m)
	if !due {
		return
	}

	e.opts.States.Publish(out)

	if e.opts.Archive != nil {
		e.opts.Archive.WriteReading(
			string(out.Key),
			out.Model,
			string(out.Key.Channel()),
			out.Fields,
			out.Timestamp,
		)
	}
}

func (e *Engine) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdCleanup:
		e.cleanup(strings.TrimSpace(cmd.payload))
	case cmdReconnect:
		e.logger.Info("broker reconnected, replaying state")
		e.opts.States.RepublishAll()
	}
}

// cleanup removes a device and retracts everything retained about it.
func (e *Engine) cleanup(key string) {
	if key == "" {
		return
	}

	rec, err := e.opts.Registry.Cleanup(ingest.DeviceKey(key))
	if err != nil {
		e.logger.Warn("cleanup for unknown device", "key", key)
		return
	}

	if err := e.opts.Announcer.Retract(*rec); err != nil {
		e.logger.Error("retraction failed",
			"key", key,
			"error", err)
	}
	e.opts.States.Forget(rec.Key)

	e.logger.Info("device cleaned up",
		"key", key,
		"entities", len(rec.Entities))
}

// injectCounters adds the bridge's own pipeline counters to a system
// event so they surface as diagnostic entities.
func (e *Engine) injectCounters(fields map[string]any) {
	malformed := e.malformed
	for _, fn := range e.malformedSources {
		malformed += fn()
	}

	fields["events_dropped"] = float64(e.opts.Queue.Dropped())
	fields["events_malformed"] = float64(malformed)
	fields["devices_tracked"] = float64(e.opts.Registry.Count())
}
