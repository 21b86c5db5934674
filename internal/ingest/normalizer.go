// Package ingest normalizes raw, attacker-controlled telemetry input into
// the typed TelemetryRecord processed by the rest of the pipeline. The
// design is deliberately permissive: no field is ever rejected, absent or
// malformed values degrade to sentinels, and judgment about content is left
// to the downstream sink.
package ingest

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"beaconrelay/internal/types"
)

// screenshotKey is the input key carrying an optional data-URI image. It is
// handled by the attachment codec, never copied into the environment bag or
// the persisted raw payload (the decoded attachment is referenced instead).
const screenshotKey = "screenshot"

// reservedKeys are input keys that map to dedicated TelemetryRecord fields
// rather than the open-ended environment bag.
var reservedKeys = map[string]struct{}{
	"lat":         {},
	"lon":         {},
	"accuracy":    {},
	"altitude":    {},
	"heading":     {},
	"speed":       {},
	"requestId":   {},
	"request_id":  {},
	screenshotKey: {},
}

// Normalize coerces a loosely-typed input record (query string or JSON body)
// into a TelemetryRecord. networkAddr and userAgent come from the ingress,
// now is the server-assigned receipt time. Never returns an error: every
// malformed field maps to an absent sentinel instead.
func Normalize(raw map[string]any, networkAddr, userAgent string, now time.Time) *types.TelemetryRecord {
	rec := &types.TelemetryRecord{
		NetworkAddress: networkAddr,
		UserAgent:      userAgent,
		ReceivedAt:     now,
		Environment:    make(map[string]string, len(raw)),
		Raw:            make(map[string]any, len(raw)),
	}

	if raw == nil {
		return rec
	}

	if id := coerceString(raw["requestId"]); id != "" {
		rec.RequestID = id
	} else if id := coerceString(raw["request_id"]); id != "" {
		rec.RequestID = id
	}

	rec.Coordinates = normalizeCoordinates(raw)

	for key, val := range raw {
		if key == screenshotKey {
			continue
		}
		rec.Raw[key] = val
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		rec.Environment[key] = coerceString(val)
	}

	return rec
}

// normalizeCoordinates extracts client-reported GPS data. Both lat and lon
// must be present (as string or number) for the coordinates to count as
// reported; the optional precision fields ride along when available.
func normalizeCoordinates(raw map[string]any) *types.Coordinates {
	lat := coerceString(raw["lat"])
	lon := coerceString(raw["lon"])
	if lat == "" || lon == "" {
		return nil
	}

	return &types.Coordinates{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  coerceString(raw["accuracy"]),
		Altitude:  coerceString(raw["altitude"]),
		Heading:   coerceString(raw["heading"]),
		Speed:     coerceString(raw["speed"]),
	}
}

// coerceString converts an arbitrary JSON-shaped value to its display string.
// Numbers lose trailing zeros, arrays are joined for display, and nested
// objects are re-encoded as compact JSON. Anything unrepresentable maps to
// the empty string (rendered later as the absent sentinel).
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// Compact JSON keeps structured values (screen geometry, battery
		// state) renderable within a single field.
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// FromQuery converts URL query values into the loosely-typed record shape
// consumed by Normalize. Repeated parameters are preserved as a slice so
// plugin lists sent as ?plugins=a&plugins=b join correctly.
func FromQuery(values map[string][]string) map[string]any {
	raw := make(map[string]any, len(values))
	for key, vals := range values {
		switch len(vals) {
		case 0:
			continue
		case 1:
			raw[key] = vals[0]
		default:
			// Stable order keeps rendered output deterministic.
			sorted := append([]string(nil), vals...)
			sort.Strings(sorted)
			raw[key] = sorted
		}
	}
	return raw
}
