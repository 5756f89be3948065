package device

import (
	"time"

	"github.com/halnode/rtl-bridge/internal/ingest"
)

// Entity is one published value belonging to a device: a single field
// with its Home Assistant presentation metadata.
type Entity struct {
	// ID is the globally unique entity identifier:
	// {bridge_id}_{device_slug}_{field}. It never changes for the
	// lifetime of the device, so Home Assistant keeps its history
	// across bridge restarts.
	ID    string `json:"id"`
	Field string `json:"field"`

	// Presentation metadata, resolved from the field name.
	Unit        string `json:"unit,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Record is the registry's view of one tracked device.
type Record struct {
	Key         ingest.DeviceKey `json:"key"`
	DisplayName string           `json:"display_name"`
	Model       string           `json:"model"`
	Channel     ingest.Channel   `json:"channel"`

	// Entities grows monotonically: a field seen once stays registered
	// even if later measurements omit it.
	Entities []Entity `json:"entities"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	// DiscoveryPublished records whether retained config topics have
	// been emitted for every current entity.
	DiscoveryPublished bool `json:"discovery_published"`

	// Online is the device's current availability as last published.
	Online bool `json:"online"`
}

// DeepCopy creates an independent copy of the Record.
// The entity slice is cloned so modifications to the copy do not
// affect the registry's state.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}

	cpy := *r
	if r.Entities != nil {
		cpy.Entities = make([]Entity, len(r.Entities))
		copy(cpy.Entities, r.Entities)
	}
	return &cpy
}

// HasEntity reports whether the record already tracks the given field.
func (r *Record) HasEntity(field string) bool {
	for _, e := range r.Entities {
		if e.Field == field {
			return true
		}
	}
	return false
}

// EventKind classifies the outcome of observing a measurement.
type EventKind int

// Observation outcomes.
const (
	// EventUnchanged means the device was already known and the
	// measurement introduced no new fields.
	EventUnchanged EventKind = iota

	// EventCreated means the measurement came from a device not seen
	// before; discovery must be published for all its entities.
	EventCreated

	// EventEntitiesExtended means a known device reported fields it had
	// never reported before; discovery must be published for those.
	EventEntitiesExtended
)

// Event is the result of a registry observation: what changed, plus an
// isolated snapshot of the record for publishers to act on.
type Event struct {
	Kind   EventKind
	Record Record

	// NewEntities lists the entities introduced by this observation.
	// Empty for EventUnchanged; all entities for EventCreated.
	NewEntities []Entity
}
