package geo

import (
	"context"
	"log/slog"
	"net/netip"
	"strconv"

	"beaconrelay/internal/types"
)

// Resolver decides the location data source for a telemetry record.
type Resolver struct {
	client  *Client
	enabled bool
	logger  *slog.Logger
}

// NewResolver creates a Resolver. When enabled is false (or client is nil)
// every record without reported coordinates resolves to unknown with no
// network call.
func NewResolver(client *Client, enabled bool, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:  client,
		enabled: enabled,
		logger:  logger,
	}
}

// Resolve determines the location for a record. It never returns an error:
// enrichment failure only degrades the rendered location to a placeholder.
//
// Precedence:
//  1. Client-reported coordinates — passed through, no network call.
//  2. One bounded lookup by network address, when enrichment is enabled and
//     the address is routable.
//  3. Unknown.
func (r *Resolver) Resolve(ctx context.Context, rec *types.TelemetryRecord) types.ResolvedLocation {
	if rec.HasReportedCoordinates() {
		return types.ResolvedLocation{
			Source:    types.LocationReported,
			Latitude:  rec.Coordinates.Latitude,
			Longitude: rec.Coordinates.Longitude,
		}
	}

	unknown := types.ResolvedLocation{Source: types.LocationUnknown}

	if !r.enabled || r.client == nil {
		return unknown
	}
	if !isRoutable(rec.NetworkAddress) {
		return unknown
	}

	lr, err := r.client.Lookup(ctx, rec.NetworkAddress)
	if err != nil {
		r.logger.Warn("geolocation lookup failed",
			"network_address", rec.NetworkAddress,
			"code", string(types.ErrCodeUpstreamGeo),
			"error", err.Error(),
		)
		return unknown
	}

	region := lr.RegionName
	if region == "" {
		region = lr.Region
	}

	return types.ResolvedLocation{
		Source:    types.LocationResolved,
		City:      lr.City,
		Region:    region,
		Country:   lr.Country,
		Latitude:  formatCoord(lr.Lat),
		Longitude: formatCoord(lr.Lon),
		ISP:       lr.ISP,
	}
}

// formatCoord renders a collaborator coordinate without trailing zeros.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// isRoutable reports whether addr is a public unicast address worth a
// lookup. Loopback, RFC1918/ULA, link-local, unspecified, and unparseable
// addresses short-circuit to unknown without a network call.
func isRoutable(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()

	switch {
	case ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified():
		return false
	}
	return true
}
