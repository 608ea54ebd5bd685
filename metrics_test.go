package amp

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)

	if collector.requestsTotal == nil {
		t.Error("requestsTotal metric not initialized")
	}
	if collector.fallbacksTotal == nil {
		t.Error("fallbacksTotal metric not initialized")
	}
	if collector.sessionResets == nil {
		t.Error("sessionResets metric not initialized")
	}
	if collector.Registry() != registry {
		t.Error("Expected collector to keep its registerer")
	}
}

func TestMetricsRecording(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordRequest(OperationDecide, "success", 12*time.Millisecond)
	collector.RecordRequest(OperationDecide, "success", 8*time.Millisecond)
	collector.RecordFallback(OperationDecide, ReasonTimeout)
	collector.RecordSessionReset()
	collector.RecordAgentSelection("https://a.test")
	collector.RecordCircuitBreakerState("https://a.test", StateOpen)
	collector.RecordError(ErrorTypeNetwork, OperationObserve)
	collector.RecordRequestStart(OperationObserve)

	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues(OperationDecide, "success")); got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(collector.fallbacksTotal.WithLabelValues(OperationDecide, "timeout")); got != 1 {
		t.Errorf("Expected 1 fallback, got %v", got)
	}
	if got := testutil.ToFloat64(collector.sessionResets); got != 1 {
		t.Errorf("Expected 1 reset, got %v", got)
	}
	if got := testutil.ToFloat64(collector.agentSelections.WithLabelValues("https://a.test")); got != 1 {
		t.Errorf("Expected 1 selection, got %v", got)
	}
	if got := testutil.ToFloat64(collector.circuitBreakerState.WithLabelValues("https://a.test")); got != float64(StateOpen) {
		t.Errorf("Expected breaker gauge %v, got %v", float64(StateOpen), got)
	}
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues(ErrorTypeNetwork, OperationObserve)); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues(OperationObserve)); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
	collector.RecordRequestEnd(OperationObserve)
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues(OperationObserve)); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
}

func TestMetricsExposition(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)
	collector.RecordSessionReset()

	expected := `
# HELP amp_session_resets_total Total number of sessions reset after their TTL elapsed
# TYPE amp_session_resets_total counter
amp_session_resets_total 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "amp_session_resets_total"); err != nil {
		t.Error(err)
	}
}

func TestNilMetricsCollector(t *testing.T) {
	var collector *MetricsCollector

	collector.RecordRequest(OperationDecide, "success", time.Millisecond)
	collector.RecordRequestStart(OperationDecide)
	collector.RecordRequestEnd(OperationDecide)
	collector.RecordFallback(OperationDecide, ReasonTimeout)
	collector.RecordSessionReset()
	collector.RecordAgentSelection("a")
	collector.RecordCircuitBreakerState("a", StateClosed)
	collector.RecordError(ErrorTypeNetwork, OperationDecide)
}

func TestAgentPoolRecordsSelections(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	pool := NewAgentPool(map[string]float64{"https://only.test": 1}, nil, collector)

	for i := 0; i < 3; i++ {
		pool.Select("user")
	}

	if got := testutil.ToFloat64(collector.agentSelections.WithLabelValues("https://only.test")); got != 3 {
		t.Errorf("Expected 3 selections, got %v", got)
	}
}
