package amp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for sessions, decisions and
// agent routing. All methods are no-ops on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	fallbacksTotal *prometheus.CounterVec

	sessionResets prometheus.Counter

	agentSelections *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)

	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amp_requests_total",
				Help: "Total number of observe and decide requests by outcome",
			},
			[]string{"operation", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amp_request_duration_seconds",
				Help:    "Duration of observe and decide requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "amp_requests_in_flight",
				Help: "Number of requests currently waiting on an agent",
			},
			[]string{"operation"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amp_fallbacks_total",
				Help: "Total number of decisions resolved to the local default",
			},
			[]string{"operation", "reason"},
		),
		sessionResets: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "amp_session_resets_total",
				Help: "Total number of sessions reset after their TTL elapsed",
			},
		),
		agentSelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amp_agent_selections_total",
				Help: "Total number of requests routed to each agent",
			},
			[]string{"agent"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "amp_circuit_breaker_state",
				Help: "Current state of an agent's circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"agent"},
		),
		rateLimiterTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "amp_rate_limiter_tokens",
				Help: "Tokens left in each operation's rate limiter",
			},
			[]string{"operation"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amp_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "operation"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(operation, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(operation, outcome).Inc()
	mc.requestDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(operation string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(operation).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(operation string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(operation).Dec()
}

// RecordFallback counts a decision resolved locally.
func (mc *MetricsCollector) RecordFallback(operation string, reason FallbackReason) {
	if mc == nil {
		return
	}

	mc.fallbacksTotal.WithLabelValues(operation, string(reason)).Inc()
}

// RecordSessionReset counts a TTL-triggered identity reset.
func (mc *MetricsCollector) RecordSessionReset() {
	if mc == nil {
		return
	}

	mc.sessionResets.Inc()
}

// RecordAgentSelection counts a request routed to agent.
func (mc *MetricsCollector) RecordAgentSelection(agent string) {
	if mc == nil {
		return
	}

	mc.agentSelections.WithLabelValues(agent).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(agent string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(agent).Set(float64(state))
}

// RecordRateLimiterTokens sets the token gauge for operation's limiter.
func (mc *MetricsCollector) RecordRateLimiterTokens(operation string, tokens int64) {
	if mc == nil {
		return
	}

	mc.rateLimiterTokens.WithLabelValues(operation).Set(float64(tokens))
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, operation string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, operation).Inc()
}

// Registry exposes the registerer the collector was built on.
func (mc *MetricsCollector) Registry() prometheus.Registerer {
	return mc.registry
}
