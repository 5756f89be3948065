package ingest

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
)

// Magnus formula coefficients for dew point over water.
const (
	magnusA = 17.62
	magnusB = 243.12
)

// identityFields are consumed during key derivation on every channel
// and never published as entities. "channel" is identity only for radio
// devices and is stripped on that path; a TCP sensor reporting a
// channel field keeps it as data.
var identityFields = map[string]struct{}{
	"model": {},
	"id":    {},
}

// rollingCodeField is re-randomised by many radio remotes on every
// transmission. It must be stripped before key derivation or each press
// registers as a brand-new device.
const rollingCodeField = "code"

// Config controls event resolution.
type Config struct {
	// BridgeID and BridgeName identify the bridge's own system-channel
	// device.
	BridgeID   string
	BridgeName string

	// SkipKeys are field names dropped from every measurement.
	SkipKeys []string

	// Whitelist/Blacklist are glob patterns matched against a device's
	// model, id, and "model:id". A non-empty whitelist admits matches
	// only; the blacklist rejects matches and wins over the whitelist.
	Whitelist []string
	Blacklist []string

	// DewPoint enables dew point enrichment when a measurement carries
	// both temperature_C and humidity.
	DewPoint bool
}

// Resolver turns raw adapter events into identified measurements.
//
// Resolution is pure: no I/O, no retained state, the same event always
// produces the same result. All bridge state lives in the registry.
type Resolver struct {
	bridgeKey  DeviceKey
	bridgeName string
	skipKeys   map[string]struct{}
	whitelist  []string
	blacklist  []string
	dewPoint   bool
}

// NewResolver creates a resolver with the given configuration.
func NewResolver(cfg Config) *Resolver {
	skip := make(map[string]struct{}, len(cfg.SkipKeys))
	for _, k := range cfg.SkipKeys {
		skip[k] = struct{}{}
	}

	name := cfg.BridgeName
	if name == "" {
		name = cfg.BridgeID
	}

	return &Resolver{
		bridgeKey:  DeviceKey("system:" + cfg.BridgeID),
		bridgeName: name,
		skipKeys:   skip,
		whitelist:  cfg.Whitelist,
		blacklist:  cfg.Blacklist,
		dewPoint:   cfg.DewPoint,
	}
}

// BridgeKey returns the device key for the bridge's own system device.
func (r *Resolver) BridgeKey() DeviceKey {
	return r.bridgeKey
}

// Resolve derives the device identity and normalised measurement from a
// raw event.
//
// Returns:
//   - Measurement: Identified reading, possibly with zero fields
//   - error: ErrMalformedEvent, ErrUnknownChannel, or ErrDeviceFiltered
func (r *Resolver) Resolve(ev RawEvent) (Measurement, error) {
	flat := make(map[string]any, len(ev.Fields))
	flatten("", ev.Fields, flat)

	switch ev.Channel {
	case ChannelTCP:
		return r.resolveTCP(ev, flat)
	case ChannelRadio:
		return r.resolveRadio(ev, flat)
	case ChannelSystem:
		return r.resolveSystem(ev, flat)
	default:
		return Measurement{}, fmt.Errorf("%w: %q", ErrUnknownChannel, ev.Channel)
	}
}

func (r *Resolver) resolveTCP(ev RawEvent, flat map[string]any) (Measurement, error) {
	model := stringField(flat, "model")
	id := stringField(flat, "id")
	if model == "" || id == "" {
		return Measurement{}, fmt.Errorf("%w: tcp event requires model and id", ErrMalformedEvent)
	}

	if !r.admitted(model, id) {
		return Measurement{}, fmt.Errorf("%w: %s:%s", ErrDeviceFiltered, model, id)
	}

	return Measurement{
		Key:         DeviceKey("tcp:" + model + ":" + id),
		Model:       model,
		DisplayName: model + " " + id,
		Timestamp:   ev.ReceivedAt,
		Fields:      r.buildFields(flat),
	}, nil
}

func (r *Resolver) resolveRadio(ev RawEvent, flat map[string]any) (Measurement, error) {
	// Strip the rolling code before anything else so it can affect
	// neither the key nor the fields.
	delete(flat, rollingCodeField)

	model := stringField(flat, "model")
	if model == "" {
		return Measurement{}, fmt.Errorf("%w: radio event requires model", ErrMalformedEvent)
	}

	idPart := stringField(flat, "id")
	if idPart == "" {
		idPart = stringField(flat, "channel")
	}
	if idPart == "" {
		idPart = "0"
	}
	// On radio, channel is a key component, not a reading.
	delete(flat, "channel")

	if !r.admitted(model, idPart) {
		return Measurement{}, fmt.Errorf("%w: %s:%s", ErrDeviceFiltered, model, idPart)
	}

	return Measurement{
		Key:         DeviceKey("radio:" + model + ":" + idPart),
		Model:       model,
		DisplayName: model + " " + idPart,
		Timestamp:   ev.ReceivedAt,
		Fields:      r.buildFields(flat),
	}, nil
}

func (r *Resolver) resolveSystem(ev RawEvent, flat map[string]any) (Measurement, error) {
	// The bridge's own device always resolves; there is nothing to
	// validate or filter.
	return Measurement{
		Key:         r.bridgeKey,
		Model:       "RTL Bridge",
		DisplayName: r.bridgeName,
		Timestamp:   ev.ReceivedAt,
		Fields:      r.buildFields(flat),
	}, nil
}

// admitted applies the whitelist/blacklist globs to a device identity.
func (r *Resolver) admitted(model, id string) bool {
	combined := model + ":" + id

	for _, pattern := range r.blacklist {
		if matchAny(pattern, model, id, combined) {
			return false
		}
	}

	if len(r.whitelist) == 0 {
		return true
	}
	for _, pattern := range r.whitelist {
		if matchAny(pattern, model, id, combined) {
			return true
		}
	}
	return false
}

func matchAny(pattern string, candidates ...string) bool {
	for _, c := range candidates {
		// path.Match only errors on bad patterns; treat those as no match
		if ok, _ := path.Match(pattern, c); ok { //nolint:errcheck // Bad pattern means no match
			return true
		}
	}
	return false
}

// buildFields normalises the flattened event into measurement fields:
// identity and skip-listed keys removed, values coerced to scalar types,
// temperature normalised to Celsius, dew point added when possible.
func (r *Resolver) buildFields(flat map[string]any) map[string]any {
	fields := make(map[string]any, len(flat))

	for k, v := range flat {
		if _, ok := identityFields[k]; ok {
			continue
		}
		if _, ok := r.skipKeys[k]; ok {
			continue
		}
		if sv, ok := scalarValue(v); ok {
			fields[k] = sv
		}
	}

	// Normalise Fahrenheit-only sources to Celsius.
	if f, ok := floatField(fields, "temperature_F"); ok {
		if _, hasC := fields["temperature_C"]; !hasC {
			fields["temperature_C"] = round2((f - 32) * 5 / 9)
		}
		delete(fields, "temperature_F")
	}

	if r.dewPoint {
		if t, ok := floatField(fields, "temperature_C"); ok {
			if h, okH := floatField(fields, "humidity"); okH && h > 0 && h <= 100 {
				fields["dew_point"] = dewPoint(t, h)
			}
		}
	}

	return fields
}

// dewPoint computes the dew point in Celsius using the Magnus formula.
func dewPoint(tempC, humidity float64) float64 {
	gamma := math.Log(humidity/100) + magnusA*tempC/(magnusB+tempC)
	return round2(magnusB * gamma / (magnusA - gamma))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// flatten recursively flattens nested JSON objects and arrays into
// underscore-joined keys: {"wind":{"dir":90}} -> wind_dir=90.
func flatten(prefix string, v any, out map[string]any) {
	switch val := v.(type) {
	case map[string]any:
		for k, nested := range val {
			key := k
			if prefix != "" {
				key = prefix + "_" + k
			}
			flatten(key, nested, out)
		}
	case []any:
		for i, nested := range val {
			flatten(prefix+"_"+strconv.Itoa(i), nested, out)
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}

// scalarValue coerces a decoded JSON value to a publishable scalar.
func scalarValue(v any) (any, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case bool:
		return val, true
	case string:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return nil, false
	}
}

// stringField reads a field as a string, converting numeric ids
// (rtl_433 emits them as JSON numbers) to their decimal form.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		// Ids are integral; avoid "5.000000"
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
