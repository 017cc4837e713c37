package viralquill

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the platform's REST API root.
const DefaultBaseURL = "https://api.x.com"

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 10 << 20

// HTTPTransport executes API requests over net/http. It is deliberately thin:
// everything above the wire (quota gating, retries, rate-limit telemetry)
// lives in the Client, and credential lifecycle beyond a static bearer token
// is the host application's concern.
type HTTPTransport struct {
	client      *http.Client
	baseURL     string
	bearerToken string
}

// NewHTTPTransport creates a transport for the given API root and bearer
// token. An empty baseURL uses DefaultBaseURL.
func NewHTTPTransport(baseURL, bearerToken string) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPTransport{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
	}
}

// Do implements the Transport interface.
func (t *HTTPTransport) Do(ctx context.Context, req *APIRequest) (*APIResponse, error) {
	u := t.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("viralquill: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+t.bearerToken)
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("viralquill: read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       b,
	}, nil
}
