package amp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewDefaults(t *testing.T) {
	client := New(WithKey("k"))

	if client.domain != DefaultDomain {
		t.Errorf("Expected domain=%s, got %s", DefaultDomain, client.domain)
	}
	if client.apiPath != DefaultAPIPath {
		t.Errorf("Expected apiPath=%s, got %s", DefaultAPIPath, client.apiPath)
	}
	if client.timeout != DefaultTimeout {
		t.Errorf("Expected timeout=%v, got %v", DefaultTimeout, client.timeout)
	}
	if client.transport == nil {
		t.Error("Expected a default transport")
	}
	if client.logger == nil {
		t.Error("Expected a default logger")
	}
	if !client.IsValid() {
		t.Errorf("Expected valid client, got %v", client.ValidationError())
	}
}

func TestWithDomainAndAPIPath(t *testing.T) {
	client := New(WithKey("k"), WithDomain("https://example.test/"), WithAPIPath("/v2/"))

	if got := client.endpoint(client.domain, OperationDecide); got != "https://example.test/v2/k/decide" {
		t.Errorf("Unexpected endpoint %s", got)
	}

	client = New(WithKey("k"), WithDomain(""), WithAPIPath(""))
	if client.domain != DefaultDomain || client.apiPath != DefaultAPIPath {
		t.Error("Expected empty domain and path to keep defaults")
	}
}

func TestEndpointDefault(t *testing.T) {
	client := New(WithKey("abc"))

	want := "https://amp.ai/api/core/v1/abc/observe"
	if got := client.endpoint(DefaultDomain, OperationObserve); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestWithTimeoutAndTTL(t *testing.T) {
	client := New(WithKey("k"), WithTimeout(250*time.Millisecond), WithDefaultSessionTTL(time.Hour), WithDefaultUserID("u"))

	if client.timeout != 250*time.Millisecond {
		t.Errorf("Expected timeout=250ms, got %v", client.timeout)
	}
	if client.sessionTTL != time.Hour {
		t.Errorf("Expected sessionTTL=1h, got %v", client.sessionTTL)
	}
	if client.userID != "u" {
		t.Errorf("Expected userID=u, got %s", client.userID)
	}
}

func TestWithAgentsCopiesTable(t *testing.T) {
	weights := map[string]float64{"https://a.test": 1, "https://b.test": 3}
	client := New(WithKey("k"), WithAgents(weights))
	weights["https://c.test"] = 5

	if client.Agents().Len() != 2 {
		t.Errorf("Expected 2 agents, got %d", client.Agents().Len())
	}
}

func TestDefaultPoolIsDomain(t *testing.T) {
	client := New(WithKey("k"), WithDomain("https://solo.test"))

	agents := client.Agents().Agents()
	if len(agents) != 1 || agents[0] != "https://solo.test" {
		t.Errorf("Expected the domain as sole agent, got %v", agents)
	}
}

func TestWithHTTPClientAndMiddleware(t *testing.T) {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	mw := func(req *http.Request, next RoundTripper) (*http.Response, error) { return next.RoundTrip(req) }

	client := New(WithKey("k"), WithHTTPClient(httpClient), WithMiddleware(mw))

	transport, ok := client.transport.(*HTTPTransport)
	if !ok {
		t.Fatalf("Expected *HTTPTransport, got %T", client.transport)
	}
	if transport.httpClient != httpClient {
		t.Error("Expected custom http client to be used")
	}
	if len(transport.middleware) != 1 {
		t.Errorf("Expected 1 middleware, got %d", len(transport.middleware))
	}
}

func TestWithTransport(t *testing.T) {
	custom := TransportFunc(func(_ context.Context, _ *Request) (*Response, error) { return nil, nil })
	client := New(WithKey("k"), WithTransport(custom))

	if _, ok := client.transport.(TransportFunc); !ok {
		t.Errorf("Expected custom transport, got %T", client.transport)
	}
}

func TestWithMetricsCollector(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := New(WithKey("k"), WithMetricsCollector(collector))

	if client.Metrics() != collector {
		t.Error("Expected custom metrics collector")
	}
}

func TestWithClockIgnoresNil(t *testing.T) {
	client := New(WithKey("k"), WithClock(nil))
	if client.now == nil {
		t.Fatal("Expected clock to remain set")
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		wantErr string
	}{
		{"valid", []Option{WithKey("k")}, ""},
		{"missing key", nil, "key is required"},
		{"bad domain", []Option{WithKey("k"), WithDomain("not a url")}, "is not an absolute URL"},
		{"negative ttl", []Option{WithKey("k"), WithDefaultSessionTTL(-time.Second)}, "session TTL"},
		{"huge timeout", []Option{WithKey("k"), WithTimeout(time.Hour)}, "timeout > 10m"},
		{"no usable agent", []Option{WithKey("k"), WithAgents(map[string]float64{"https://a.test": 0})}, "positive weight"},
		{"relative agent", []Option{WithKey("k"), WithAgents(map[string]float64{"/a": 1})}, "not an absolute URL"},
		{"negative breaker", []Option{WithKey("k"), WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: -1})}, "FailureThreshold"},
		{"nil middleware", []Option{WithKey("k"), WithMiddleware(nil)}, "middleware[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.options...)
			err := client.ValidateConfiguration()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
			var clientErr *ClientError
			if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeConfig {
				t.Errorf("Expected Config ClientError, got %T", err)
			}
		})
	}
}

func TestInvalidClientRefusesSessions(t *testing.T) {
	client := New(WithKey("k"), WithDomain("nope"))

	if client.IsValid() {
		t.Fatal("Expected client to be invalid")
	}
	if _, err := client.NewSession(); err == nil {
		t.Error("Expected NewSession to fail on invalid client")
	}
}

func TestWithHistoryLimit(t *testing.T) {
	if got := New(WithKey("k")).history; got != DefaultHistoryLimit {
		t.Errorf("Expected history=%d, got %d", DefaultHistoryLimit, got)
	}
	if got := New(WithKey("k"), WithHistoryLimit(5)).history; got != 5 {
		t.Errorf("Expected history=5, got %d", got)
	}
	if got := New(WithKey("k"), WithHistoryLimit(-1)).history; got != 0 {
		t.Errorf("Expected negative limit to disable history, got %d", got)
	}
}
