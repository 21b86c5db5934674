package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaconrelay/internal/config"
	"beaconrelay/internal/types"
)

func testDeliveryLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sinkConfig(url string) config.SinkConfig {
	return config.SinkConfig{
		WebhookURL:    types.SecretString(url),
		Username:      "BeaconRelay",
		UserAgent:     "BeaconRelay-Webhook/1.0",
		Timeout:       2 * time.Second,
		UploadTimeout: 2 * time.Second,
	}
}

func testPayload() *WebhookPayload {
	return &WebhookPayload{
		Username: "BeaconRelay",
		Content:  "New report - 2026-03-14T09:30:00Z",
		Embeds:   []Embed{{Title: "Telemetry Report"}},
	}
}

func TestDeliver_SinkUnconfiguredIsSkipped(t *testing.T) {
	d := NewDeliverer(sinkConfig(""), testDeliveryLogger())

	res := d.Deliver(context.Background(), testPayload(), nil)

	assert.Equal(t, types.DeliverySkipped, res.Outcome)
	assert.Zero(t, res.StatusCode)
}

func TestDeliver_JSONEncodingWithoutAttachment(t *testing.T) {
	var gotContentType, gotUserAgent, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDeliverer(sinkConfig(srv.URL), testDeliveryLogger())

	res := d.Deliver(context.Background(), testPayload(), nil)

	assert.Equal(t, types.DeliverySent, res.Outcome)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "BeaconRelay-Webhook/1.0", gotUserAgent)
	assert.Contains(t, gotBody, `"Telemetry Report"`)
}

func TestDeliver_MultipartEncodingWithAttachment(t *testing.T) {
	att := &types.Attachment{
		MimeType: "image/png",
		Bytes:    []byte{0x89, 'P', 'N', 'G'},
		Filename: "req-1.png",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Contains(t, r.FormValue(payloadFieldName), `"Telemetry Report"`)

		files := r.MultipartForm.File["files[0]"]
		require.Len(t, files, 1)
		assert.Equal(t, "req-1.png", files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))

		f, err := files[0].Open()
		require.NoError(t, err)
		defer f.Close()
		raw, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, att.Bytes, raw)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(sinkConfig(srv.URL), testDeliveryLogger())

	res := d.Deliver(context.Background(), testPayload(), att)
	assert.Equal(t, types.DeliverySent, res.Outcome)
}

func TestDeliver_SinkRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	d := NewDeliverer(sinkConfig(srv.URL), testDeliveryLogger())

	res := d.Deliver(context.Background(), testPayload(), nil)

	assert.Equal(t, types.DeliveryFailed, res.Outcome)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Contains(t, res.Detail, "rate limited")
}

func TestDeliver_RejectionDetailIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 10_000)))
	}))
	defer srv.Close()

	d := NewDeliverer(sinkConfig(srv.URL), testDeliveryLogger())

	res := d.Deliver(context.Background(), testPayload(), nil)

	assert.Equal(t, types.DeliveryFailed, res.Outcome)
	assert.LessOrEqual(t, len(res.Detail), maxDetailLen)
}

func TestDeliver_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	d := NewDeliverer(sinkConfig(srv.URL), testDeliveryLogger())

	res := d.Deliver(context.Background(), testPayload(), nil)

	assert.Equal(t, types.DeliveryFailed, res.Outcome)
	assert.NotEmpty(t, res.Detail)
	assert.Zero(t, res.StatusCode)
}

func TestFailureCode_Classification(t *testing.T) {
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, failureCode(http.StatusTooManyRequests))
	assert.Equal(t, types.ErrCodeUpstreamSink, failureCode(http.StatusBadGateway))
	assert.Equal(t, types.ErrCodeUpstreamSink, failureCode(http.StatusInternalServerError))
}

func TestDeliver_SingleAttemptOnFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDeliverer(sinkConfig(srv.URL), testDeliveryLogger())

	_ = d.Deliver(context.Background(), testPayload(), nil)
	assert.Equal(t, 1, calls, "delivery must not retry")
}
