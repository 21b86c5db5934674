package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"beaconrelay/internal/config"
	"beaconrelay/internal/types"
)

// maxResponseBodyRead limits how much of a sink response body is read for
// failure detail logging.
const maxResponseBodyRead = 4096

// maxDetailLen bounds the body snippet captured in a DeliveryResult.
const maxDetailLen = 256

// payloadFieldName is the multipart field carrying the serialized document.
// files[0] carries the raw attachment bytes, matching the sink's
// document-plus-file convention.
const payloadFieldName = "payload_json"

// Deliverer sends rendered documents to the configured webhook sink. One
// attempt per document, bounded timeout, no retry; every failure is captured
// in the returned DeliveryResult and swallowed by the caller.
type Deliverer struct {
	cfg          config.SinkConfig
	client       *http.Client // document-only sends
	uploadClient *http.Client // multipart sends, sized for large attachments
	logger       *slog.Logger
}

// NewDeliverer creates a Deliverer from sink configuration.
func NewDeliverer(cfg config.SinkConfig, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		cfg:          cfg,
		client:       &http.Client{Timeout: cfg.Timeout},
		uploadClient: &http.Client{Timeout: cfg.UploadTimeout},
		logger:       logger,
	}
}

// NewDelivererWithClient creates a Deliverer that uses the given HTTP client
// for both encodings. This constructor exists for testing.
func NewDelivererWithClient(cfg config.SinkConfig, client *http.Client, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		cfg:          cfg,
		client:       client,
		uploadClient: client,
		logger:       logger,
	}
}

// Deliver sends the document to the sink, choosing multipart-with-file
// encoding when an attachment is present and plain JSON otherwise.
func (d *Deliverer) Deliver(ctx context.Context, payload *WebhookPayload, att *types.Attachment) types.DeliveryResult {
	if !d.cfg.WebhookURL.IsSet() {
		d.logger.Info("no sink webhook configured, skipping delivery")
		return types.DeliveryResult{Outcome: types.DeliverySkipped}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		// Marshalling a fully string-typed document cannot realistically
		// fail, but the outcome contract still wants an explicit result.
		return types.DeliveryResult{
			Outcome: types.DeliveryFailed,
			Detail:  fmt.Sprintf("encoding document: %v", err),
		}
	}

	var (
		req     *http.Request
		reqErr  error
		client  = d.client
		reqKind = "json"
	)
	if att != nil {
		req, reqErr = d.newMultipartRequest(ctx, body, att)
		client = d.uploadClient
		reqKind = "multipart"
	} else {
		req, reqErr = d.newJSONRequest(ctx, body)
	}
	if reqErr != nil {
		return types.DeliveryResult{
			Outcome: types.DeliveryFailed,
			Detail:  fmt.Sprintf("building request: %v", reqErr),
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		d.logger.Warn("sink delivery failed",
			"encoding", reqKind,
			"code", string(types.ErrCodeUpstreamSink),
			"error", err.Error(),
		)
		return types.DeliveryResult{
			Outcome: types.DeliveryFailed,
			Detail:  truncateDetail(err.Error()),
		}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn("sink rejected delivery",
			"encoding", reqKind,
			"code", string(failureCode(resp.StatusCode)),
			"status", resp.StatusCode,
			"body", truncateDetail(string(snippet)),
		)
		return types.DeliveryResult{
			Outcome:    types.DeliveryFailed,
			StatusCode: resp.StatusCode,
			Detail:     truncateDetail(string(snippet)),
		}
	}

	d.logger.Info("sink delivery succeeded",
		"encoding", reqKind,
		"status", resp.StatusCode,
	)
	return types.DeliveryResult{
		Outcome:    types.DeliverySent,
		StatusCode: resp.StatusCode,
	}
}

// newJSONRequest builds a document-only POST.
func (d *Deliverer) newJSONRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL.Unmask(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	return req, nil
}

// newMultipartRequest builds a multipart POST: one part with the serialized
// document as payload metadata, one file part with the raw attachment bytes
// under the generated filename and detected media type.
func (d *Deliverer) newMultipartRequest(ctx context.Context, body []byte, att *types.Attachment) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormField(payloadFieldName)
	if err != nil {
		return nil, fmt.Errorf("creating payload part: %w", err)
	}
	if _, err := fw.Write(body); err != nil {
		return nil, fmt.Errorf("writing payload part: %w", err)
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[0]"; filename=%q`, att.Filename))
	header.Set("Content-Type", att.MimeType)
	pw, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := pw.Write(att.Bytes); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL.Unmask(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	return req, nil
}

// failureCode classifies a sink rejection for logging. 429 is called out
// separately so rate-limit pressure is distinguishable from outages.
func failureCode(statusCode int) types.ErrorCode {
	if statusCode == http.StatusTooManyRequests {
		return types.ErrCodeUpstreamRateLimited
	}
	return types.ErrCodeUpstreamSink
}

// truncateDetail bounds failure detail captured for logging.
func truncateDetail(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen]
}
