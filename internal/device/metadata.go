package device

import "strings"

// Meta is the Home Assistant presentation metadata for one field name.
type Meta struct {
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
	Category    string
}

// CategoryDiagnostic places an entity in Home Assistant's diagnostic
// section instead of the main sensor list.
const CategoryDiagnostic = "diagnostic"

// fieldMeta maps well-known field names to their presentation metadata.
// Fields not listed here are published as plain sensors with no unit.
var fieldMeta = map[string]Meta{
	"temperature_C": {Unit: "°C", DeviceClass: "temperature", StateClass: "measurement"},
	"humidity":      {Unit: "%", DeviceClass: "humidity", StateClass: "measurement"},
	"dew_point":     {Unit: "°C", DeviceClass: "temperature", StateClass: "measurement", Icon: "mdi:water-thermometer"},
	"pressure_hPa":  {Unit: "hPa", DeviceClass: "pressure", StateClass: "measurement"},
	"battery_ok":    {Icon: "mdi:battery", Category: CategoryDiagnostic},
	"battery_V":     {Unit: "V", DeviceClass: "voltage", StateClass: "measurement", Category: CategoryDiagnostic},
	"rssi":          {Unit: "dBm", DeviceClass: "signal_strength", StateClass: "measurement", Category: CategoryDiagnostic},
	"snr":           {Unit: "dB", StateClass: "measurement", Category: CategoryDiagnostic},
	"noise":         {Unit: "dB", StateClass: "measurement", Category: CategoryDiagnostic},
	"wind_avg_km_h": {Unit: "km/h", DeviceClass: "wind_speed", StateClass: "measurement"},
	"wind_dir_deg":  {Unit: "°", Icon: "mdi:compass", StateClass: "measurement"},
	"rain_mm":       {Unit: "mm", DeviceClass: "precipitation", StateClass: "total_increasing"},

	// Bridge self-monitoring fields.
	"cpu_percent":      {Unit: "%", StateClass: "measurement", Icon: "mdi:cpu-64-bit", Category: CategoryDiagnostic},
	"memory_percent":   {Unit: "%", StateClass: "measurement", Icon: "mdi:memory", Category: CategoryDiagnostic},
	"disk_percent":     {Unit: "%", StateClass: "measurement", Icon: "mdi:harddisk", Category: CategoryDiagnostic},
	"cpu_temperature":  {Unit: "°C", DeviceClass: "temperature", StateClass: "measurement", Category: CategoryDiagnostic},
	"uptime_s":         {Unit: "s", DeviceClass: "duration", StateClass: "total_increasing", Category: CategoryDiagnostic},
	"events_dropped":   {StateClass: "total_increasing", Icon: "mdi:package-down", Category: CategoryDiagnostic},
	"events_malformed": {StateClass: "total_increasing", Icon: "mdi:alert-circle-outline", Category: CategoryDiagnostic},
	"devices_tracked":  {StateClass: "measurement", Icon: "mdi:devices", Category: CategoryDiagnostic},
}

// metaFor resolves presentation metadata for a field name.
// Radio status fields carry a dynamic suffix, so they are matched by
// prefix rather than through the table.
func metaFor(field string) Meta {
	if m, ok := fieldMeta[field]; ok {
		return m
	}
	if strings.HasPrefix(field, "radio_status") {
		return Meta{Icon: "mdi:radio-tower", Category: CategoryDiagnostic}
	}
	return Meta{}
}

// entityID builds the stable unique identifier for an entity.
func entityID(bridgeID, slug, field string) string {
	return bridgeID + "_" + slug + "_" + field
}

// newEntity creates an entity for a field on the device with the given
// slug, resolving its presentation metadata.
func newEntity(bridgeID, slug, field string) Entity {
	m := metaFor(field)
	return Entity{
		ID:          entityID(bridgeID, slug, field),
		Field:       field,
		Unit:        m.Unit,
		DeviceClass: m.DeviceClass,
		StateClass:  m.StateClass,
		Icon:        m.Icon,
		Category:    m.Category,
	}
}
