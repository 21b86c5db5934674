// Package handlers contains the HTTP handlers for the BeaconRelay API. The
// ingest handler orchestrates the full pipeline for one report: normalize,
// resolve location, persist, render, deliver, acknowledge. Every stage after
// normalization is best-effort: a failure logs and advances rather than
// aborting, and the caller always receives the fixed acknowledgment.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"beaconrelay/internal/core"
	"beaconrelay/internal/ingest"
	"beaconrelay/internal/notify"
	"beaconrelay/internal/types"
)

// persistTimeout bounds the best-effort persistence write so a slow store
// cannot hold up acknowledgment indefinitely.
const persistTimeout = 5 * time.Second

// ackBody is the fixed acknowledgment returned to every caller regardless of
// downstream outcomes. The caller is an untrusted, non-retrying browser
// script; backend failures are never surfaced through this endpoint.
var ackBody = map[string]string{"status": "received"}

// LocationResolver decides the location data source for a record.
type LocationResolver interface {
	Resolve(ctx context.Context, rec *types.TelemetryRecord) types.ResolvedLocation
}

// Deliverer sends a rendered document (plus optional attachment) to the sink.
type Deliverer interface {
	Deliver(ctx context.Context, payload *notify.WebhookPayload, att *types.Attachment) types.DeliveryResult
}

// Persister appends a raw record to the opaque append-only store.
type Persister interface {
	Append(ctx context.Context, rec *types.TelemetryRecord) error
}

// IngestHandler handles the inbound telemetry endpoint.
type IngestHandler struct {
	resolver  LocationResolver
	renderer  *notify.Renderer
	deliverer Deliverer
	persister Persister // nil when persistence is not configured

	maxBodyBytes       int64
	maxAttachmentBytes int

	logger *slog.Logger
	now    func() time.Time
}

// NewIngestHandler creates an IngestHandler. persister may be nil, in which
// case reports are delivered but not stored.
func NewIngestHandler(
	resolver LocationResolver,
	renderer *notify.Renderer,
	deliverer Deliverer,
	persister Persister,
	maxBodyBytes int64,
	maxAttachmentBytes int,
	logger *slog.Logger,
) *IngestHandler {
	return &IngestHandler{
		resolver:           resolver,
		renderer:           renderer,
		deliverer:          deliverer,
		persister:          persister,
		maxBodyBytes:       maxBodyBytes,
		maxAttachmentBytes: maxAttachmentBytes,
		logger:             logger,
		now:                time.Now,
	}
}

// SetClock overrides the receipt-time clock for testing.
func (h *IngestHandler) SetClock(now func() time.Time) {
	h.now = now
}

// RegisterRoutes mounts the ingestion endpoint. GET carries telemetry in
// query parameters; POST carries a JSON body large enough for attachments.
// /v1/reports is the RESTful alias for the same pipeline.
func (h *IngestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/track", h.HandleTrack)
	r.Post("/track", h.HandleTrack)
	r.Get("/v1/reports", h.HandleTrack)
	r.Post("/v1/reports", h.HandleTrack)
}

// HandleTrack runs the ingestion pipeline for one request.
func (h *IngestHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := h.decodeInput(w, r)

	rec := ingest.Normalize(raw, clientIP(r), r.UserAgent(), h.now())
	if rec.RequestID == "" {
		rec.RequestID = types.GetRequestID(ctx)
	}

	rec.Attachment = h.decodeAttachment(raw, rec)

	loc := h.resolver.Resolve(ctx, rec)

	// Persistence runs concurrently with render+deliver; neither outcome can
	// fail the request, and the caller never learns about either.
	g, gctx := errgroup.WithContext(ctx)

	if h.persister != nil {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, persistTimeout)
			defer cancel()
			if err := h.persister.Append(pctx, rec); err != nil {
				h.logger.Warn("persisting report failed",
					"request_id", rec.RequestID,
					"error", err.Error(),
				)
			}
			return nil
		})
	}

	g.Go(func() error {
		doc := h.renderer.Render(rec, loc, rec.Attachment)
		result := h.deliverer.Deliver(gctx, doc, rec.Attachment)
		if result.Outcome == types.DeliveryFailed {
			h.logger.Warn("report delivery failed",
				"request_id", rec.RequestID,
				"status", result.StatusCode,
				"detail", result.Detail,
			)
		}
		return nil
	})

	// Errors are swallowed inside the goroutines; Wait only synchronizes.
	_ = g.Wait()

	core.JSON(w, r, http.StatusOK, ackBody)
}

// decodeInput extracts the loosely-typed input record from query parameters
// (GET) or a JSON body (POST). Malformed or oversized bodies degrade to an
// empty record; this endpoint never rejects input.
func (h *IngestHandler) decodeInput(w http.ResponseWriter, r *http.Request) map[string]any {
	if r.Method == http.MethodGet {
		raw := ingest.FromQuery(r.URL.Query())
		if r.URL.RawQuery != "" {
			// The unparsed query survives in the persisted record.
			raw["rawQuery"] = r.URL.RawQuery
		}
		return raw
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.logger.Warn("undecodable report body",
			"request_id", types.GetRequestID(r.Context()),
			"code", string(decodeFailureCode(err)),
			"error", err.Error(),
		)
		return nil
	}
	return raw
}

// decodeFailureCode classifies a body decode failure for logging.
func decodeFailureCode(err error) types.ErrorCode {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return types.ErrCodeValidationBodyTooLarge
	}
	return types.ErrCodeValidationInvalidJSON
}

// decodeAttachment extracts an optional screenshot attachment. The filename
// token is the request id, guaranteeing distinct names across requests.
func (h *IngestHandler) decodeAttachment(raw map[string]any, rec *types.TelemetryRecord) *types.Attachment {
	uri, _ := raw["screenshot"].(string)
	if uri == "" {
		return nil
	}

	token := rec.RequestID
	if token == "" {
		token = uuid.New().String()
	}

	return ingest.DecodeAttachment(uri, token, h.maxAttachmentBytes)
}

// clientIP determines the caller's network address as seen by the ingress.
// Behind a trusted proxy the first X-Forwarded-For entry wins; the IPv6
// mapped prefix is stripped so IPv4 callers enrich correctly. Never trusted
// for identity, only for enrichment.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		return strings.TrimPrefix(strings.TrimSpace(first), "::ffff:")
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return strings.TrimPrefix(host, "::ffff:")
}
