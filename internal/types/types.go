// Package types defines the shared domain model for the BeaconRelay service:
// the normalized telemetry record produced by ingestion, the request-scoped
// resolved location, decoded attachments, and the outcome types returned by
// the delivery and persistence collaborators.
package types

import "time"

// AbsentValue is the placeholder rendered for any field the client did not
// supply. Rendered documents never contain empty strings or literal nulls.
const AbsentValue = "–"

// Coordinates holds client-reported GPS data. All values are kept as display
// strings because clients send them as either strings or numbers and no
// arithmetic is ever performed on them server-side.
type Coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Accuracy  string `json:"accuracy_m,omitempty"`
	Altitude  string `json:"altitude,omitempty"`
	Heading   string `json:"heading,omitempty"`
	Speed     string `json:"speed,omitempty"`
}

// Attachment is a decoded image payload extracted from a data URI.
type Attachment struct {
	MimeType string
	Bytes    []byte
	Filename string
}

// TelemetryRecord is the normalized representation of one client report.
// ReceivedAt is always server-assigned; nothing the client sends can set it.
type TelemetryRecord struct {
	RequestID      string            `json:"request_id,omitempty"`
	NetworkAddress string            `json:"network_address"`
	UserAgent      string            `json:"user_agent"`
	ReceivedAt     time.Time         `json:"received_at"`
	Coordinates    *Coordinates      `json:"reported_coordinates,omitempty"`
	Environment    map[string]string `json:"environment"`
	Raw            map[string]any    `json:"raw,omitempty"`
	Attachment     *Attachment       `json:"-"`
}

// HasReportedCoordinates reports whether the client explicitly supplied GPS
// data. Reported coordinates always win over network-address enrichment.
func (r *TelemetryRecord) HasReportedCoordinates() bool {
	return r.Coordinates != nil && r.Coordinates.Latitude != "" && r.Coordinates.Longitude != ""
}

// Env returns the normalized environment value for key, or AbsentValue when
// the client did not supply it.
func (r *TelemetryRecord) Env(key string) string {
	if v, ok := r.Environment[key]; ok && v != "" {
		return v
	}
	return AbsentValue
}

// LocationSource identifies how a ResolvedLocation was obtained.
type LocationSource string

const (
	// LocationReported means the client supplied GPS coordinates directly.
	LocationReported LocationSource = "reported"

	// LocationResolved means the location was derived from the caller's
	// network address via the geolocation collaborator.
	LocationResolved LocationSource = "resolved"

	// LocationUnknown means no location could be determined. This is the
	// soft-failure state for disabled enrichment, private addresses, and
	// lookup errors.
	LocationUnknown LocationSource = "unknown"
)

// ResolvedLocation is the request-scoped location derived for one record.
// It is never persisted independently of the record that produced it.
type ResolvedLocation struct {
	Source    LocationSource `json:"source"`
	City      string         `json:"city,omitempty"`
	Region    string         `json:"region,omitempty"`
	Country   string         `json:"country,omitempty"`
	Latitude  string         `json:"latitude,omitempty"`
	Longitude string         `json:"longitude,omitempty"`
	ISP       string         `json:"isp,omitempty"`
}

// HasCoordinates reports whether the location carries a usable lat/lon pair.
func (l ResolvedLocation) HasCoordinates() bool {
	return l.Latitude != "" && l.Longitude != ""
}

// DeliveryOutcome classifies the result of one sink delivery attempt.
type DeliveryOutcome string

const (
	// DeliverySent means the sink accepted the document (2xx).
	DeliverySent DeliveryOutcome = "sent"

	// DeliverySkipped means no sink endpoint is configured. Not a failure.
	DeliverySkipped DeliveryOutcome = "skipped"

	// DeliveryFailed means the single attempt ended in a non-2xx response,
	// a timeout, or a network error. Never surfaced to the caller.
	DeliveryFailed DeliveryOutcome = "failed"
)

// DeliveryResult captures the outcome of a sink delivery with enough detail
// for logging. Failures are explicit return values, not panics or errors, so
// the handler (and tests) can assert on failed-but-acknowledged behavior.
type DeliveryResult struct {
	Outcome    DeliveryOutcome
	StatusCode int
	Detail     string
}
