package amp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is one call to an agent endpoint.
type Request struct {
	Operation string
	URL       string
	Agent     string
	RequestID string
	Body      any
}

// Response is what an agent answered. Body is passed through uninterpreted.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends a request to an agent. Implementations must honour ctx
// cancellation; the engine cancels ctx when the deadline wins the race.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps the HTTP round trip of the default transport.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HTTPTransport posts JSON request bodies over net/http.
type HTTPTransport struct {
	httpClient *http.Client
	middleware []Middleware
	userAgent  string
}

// NewHTTPTransport returns a transport using httpClient (http.DefaultClient
// when nil) with middleware applied in order, outermost first.
func NewHTTPTransport(httpClient *http.Client, middleware ...Middleware) *HTTPTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPTransport{
		httpClient: httpClient,
		middleware: middleware,
		userAgent:  "amp-go/" + Version,
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, r *Request) (*Response, error) {
	start := time.Now()

	payload, err := json.Marshal(r.Body)
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "request body is not JSON encodable",
			Cause:     err,
			RequestID: r.RequestID,
			Operation: r.Operation,
			URL:       r.URL,
			Agent:     r.Agent,
			Timestamp: time.Now(),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, t.clientError(ErrorTypeConfig, "invalid request", err, r, 0, start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if r.RequestID != "" {
		req.Header.Set("X-Request-ID", r.RequestID)
	}

	httpResp, err := t.executeMiddleware(req)
	if err != nil {
		return nil, t.clientError(ErrorTypeNetwork, "network request failed", err, r, 0, start)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, t.clientError(ErrorTypeNetwork, "reading response body failed", err, r, httpResp.StatusCode, start)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       body,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg := fmt.Sprintf("agent responded %s", http.StatusText(httpResp.StatusCode))
		return resp, t.clientError(ErrorTypeServer, msg, nil, r, httpResp.StatusCode, start)
	}

	return resp, nil
}

func (t *HTTPTransport) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(t.middleware) == 0 {
		return t.httpClient.Do(req)
	}

	current := RoundTripperFunc(t.httpClient.Do)

	for i := len(t.middleware) - 1; i >= 0; i-- {
		middleware := t.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func (t *HTTPTransport) clientError(errorType, message string, cause error, r *Request, statusCode int, start time.Time) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  r.RequestID,
		Operation:  r.Operation,
		URL:        r.URL,
		Agent:      r.Agent,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
	}
}
