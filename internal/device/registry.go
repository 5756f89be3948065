package device

import (
	"sort"
	"sync"
	"time"

	"github.com/halnode/rtl-bridge/internal/ingest"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks every device observed since startup, in memory.
//
// Device state is rebuilt from the event streams themselves: sensors
// rebroadcast continuously, so within one cycle the registry converges
// on the real population. The only identity that must survive restarts
// is the bridge's own, which lives in the identity store.
//
// All public methods are thread-safe, and every returned Record is a
// deep copy: callers can never mutate registry state through a result.
type Registry struct {
	bridgeID string
	records  map[ingest.DeviceKey]*Record
	mu       sync.RWMutex
	logger   Logger
}

// NewRegistry creates an empty registry for the given bridge.
// The bridge ID seeds every entity's unique identifier.
func NewRegistry(bridgeID string) *Registry {
	return &Registry{
		bridgeID: bridgeID,
		records:  make(map[ingest.DeviceKey]*Record),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// BridgeID returns the bridge identifier the registry namespaces
// entities under.
func (r *Registry) BridgeID() string {
	return r.bridgeID
}

// Observe records a resolved measurement against the registry.
//
// A first sighting creates the record; a known device reporting fields
// it never reported before has its entity list extended. Either way
// LastSeenAt advances.
//
// Returns:
//   - Event: What changed, with an isolated snapshot of the record
func (r *Registry) Observe(m ingest.Measurement) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[m.Key]
	if !ok {
		rec = &Record{
			Key:         m.Key,
			DisplayName: m.DisplayName,
			Model:       m.Model,
			Channel:     m.Key.Channel(),
			FirstSeenAt: m.Timestamp,
		}
		rec.Entities = r.entitiesFor(rec, m.Fields)
		rec.LastSeenAt = m.Timestamp
		r.records[m.Key] = rec

		r.logger.Info("device tracked",
			"key", string(m.Key),
			"model", m.Model,
			"entities", len(rec.Entities))

		return Event{
			Kind:        EventCreated,
			Record:      *rec.DeepCopy(),
			NewEntities: append([]Entity(nil), rec.Entities...),
		}
	}

	rec.LastSeenAt = m.Timestamp

	added := r.entitiesFor(rec, m.Fields)
	if len(added) == 0 {
		return Event{Kind: EventUnchanged, Record: *rec.DeepCopy()}
	}

	rec.Entities = append(rec.Entities, added...)
	rec.DiscoveryPublished = false

	r.logger.Info("device entities extended",
		"key", string(m.Key),
		"added", len(added),
		"total", len(rec.Entities))

	return Event{
		Kind:        EventEntitiesExtended,
		Record:      *rec.DeepCopy(),
		NewEntities: added,
	}
}

// entitiesFor builds entities for any fields the record does not track
// yet, in deterministic order. Caller must hold the lock.
func (r *Registry) entitiesFor(rec *Record, fields map[string]any) []Entity {
	var names []string
	for field := range fields {
		if !rec.HasEntity(field) {
			names = append(names, field)
		}
	}
	sort.Strings(names)

	entities := make([]Entity, 0, len(names))
	slug := rec.Key.Slug()
	for _, field := range names {
		entities = append(entities, newEntity(r.bridgeID, slug, field))
	}
	return entities
}

// Get retrieves a tracked device by key.
// Returns ErrDeviceNotFound if the device has not been observed.
func (r *Registry) Get(key ingest.DeviceKey) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return rec.DeepCopy(), nil
}

// List returns snapshots of all tracked devices, ordered by key.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec.DeepCopy())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records
}

// ListStale returns snapshots of online devices whose last sighting is
// older than the per-channel threshold at the given instant. Devices
// with no threshold for their channel are never reported stale.
func (r *Registry) ListStale(now time.Time, thresholds map[ingest.Channel]time.Duration) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []Record
	for _, rec := range r.records {
		if !rec.Online {
			continue
		}
		threshold, ok := thresholds[rec.Channel]
		if !ok {
			continue
		}
		if now.Sub(rec.LastSeenAt) > threshold {
			stale = append(stale, *rec.DeepCopy())
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].Key < stale[j].Key
	})
	return stale
}

// SetOnline updates a device's availability flag.
//
// Returns:
//   - bool: Whether the flag actually changed (callers publish only then)
//   - error: ErrDeviceNotFound if the device is not tracked
func (r *Registry) SetOnline(key ingest.DeviceKey, online bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return false, ErrDeviceNotFound
	}
	if rec.Online == online {
		return false, nil
	}
	rec.Online = online
	return true, nil
}

// MarkDiscoveryPublished records that retained config topics now exist
// for every current entity of the device.
func (r *Registry) MarkDiscoveryPublished(key ingest.DeviceKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return ErrDeviceNotFound
	}
	rec.DiscoveryPublished = true
	return nil
}

// Cleanup removes a device from the registry.
//
// The returned snapshot lets the caller retract the device's retained
// topics. If the device reappears on the air it will simply be tracked
// again as new.
func (r *Registry) Cleanup(key ingest.DeviceKey) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	delete(r.records, key)

	r.logger.Info("device removed", "key", string(key))
	return rec.DeepCopy(), nil
}

// Count returns the number of tracked devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
