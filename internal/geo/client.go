// Package geo resolves a best-effort location for each telemetry record.
// Client-reported coordinates always win; otherwise a single bounded lookup
// against an ip-api.com-compatible collaborator is attempted. Every failure
// mode degrades to an unknown location — nothing in this package can fail a
// request.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// maxLookupResponseBytes bounds how much of a lookup response is read. The
// collaborator's documents are a few hundred bytes; anything larger is
// either misconfiguration or abuse.
const maxLookupResponseBytes = 1 << 16

// statusSuccess is the collaborator's own success signal. Anything else
// (including "fail" with a message) means no usable location.
const statusSuccess = "success"

// lookupResponse mirrors the ip-api.com JSON document. regionName is the
// human-readable region; region is the short code kept as a fallback.
type lookupResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Region     string  `json:"region"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ISP        string  `json:"isp"`
}

// Client performs IP geolocation lookups. Calls are wrapped in a circuit
// breaker: the pipeline makes exactly one attempt per request, and when the
// collaborator is persistently down the breaker skips even that attempt so
// ingestion latency stays bounded.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*lookupResponse]
	baseURL    string
}

// NewClient creates a lookup client for the given ip-api-compatible base URL
// with a per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker[*lookupResponse](gobreaker.Settings{
		Name:        "geolocation",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
		baseURL:    baseURL,
	}
}

// NewClientWithHTTPClient creates a lookup client with a caller-supplied
// HTTP client. This constructor exists for testing against httptest servers.
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	c := NewClient(baseURL, 0)
	c.httpClient = httpClient
	return c
}

// Lookup issues one GET to <base>/json/<addr>. It returns an error for any
// transport failure, non-200 status, undecodable body, or unsuccessful
// status signal. No retries: the resolver treats every error as "unknown".
func (c *Client) Lookup(ctx context.Context, addr string) (*lookupResponse, error) {
	return c.breaker.Execute(func() (*lookupResponse, error) {
		url := fmt.Sprintf("%s/json/%s", c.baseURL, addr)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("geo lookup: building request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("geo lookup: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("geo lookup: unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("geo lookup: reading response: %w", err)
		}

		var lr lookupResponse
		if err := json.Unmarshal(body, &lr); err != nil {
			return nil, fmt.Errorf("geo lookup: decoding response: %w", err)
		}

		if lr.Status != statusSuccess {
			return nil, fmt.Errorf("geo lookup: collaborator status %q: %s", lr.Status, lr.Message)
		}

		return &lr, nil
	})
}
