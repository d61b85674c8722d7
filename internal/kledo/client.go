package kledo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/storeledger/kledo-sync/internal/store"
)

const userAgent = "kledo-sync/1.0"

// Client issues authenticated REST calls against the configured Kledo API.
// Every call is a fresh round trip: no caching, no retries. Transport
// failures surface as errors; an application-level rejection (a well-formed
// response with success:false) is reported through Response.Rejected.
type Client struct {
	conn       *Connection
	settings   *store.SettingsStore
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewClient creates the API client. httpClient may be nil to use the default
// client with the fixed timeout.
func NewClient(conn *Connection, settings *store.SettingsStore, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(false)
	}
	return &Client{
		conn:       conn,
		settings:   settings,
		httpClient: httpClient,
		logger:     logger,
		tracer:     otel.Tracer("kledo-sync/kledo"),
	}
}

// Request describes one API call.
type Request struct {
	Method   string
	Endpoint string
	Query    url.Values
	// Body is JSON-encoded when non-nil.
	Body interface{}
}

// Response is the normalized call result.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// JSON decodes the body best-effort; a body that is not valid JSON yields
// nil, not an error. Callers must handle nil.
func (r *Response) JSON() map[string]interface{} {
	var decoded map[string]interface{}
	if err := json.Unmarshal(r.Body, &decoded); err != nil {
		return nil
	}
	return decoded
}

// Rejected reports an application-level failure: a well-formed response body
// carrying success:false.
func (r *Response) Rejected() bool {
	decoded := r.JSON()
	if decoded == nil {
		return false
	}
	success, ok := decoded["success"].(bool)
	return ok && !success
}

// Do performs the call. The connection check runs first: without a stored
// access token it fails with ErrNotConnected before any network I/O.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	token, err := c.conn.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	cs, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "kledo.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("kledo.endpoint", req.Endpoint),
		))
	defer span.End()

	target := cs.BaseURL() + "/" + req.Endpoint
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	c.logger.Debug("Kledo API call",
		zap.String("method", req.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", resp.StatusCode))

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}
