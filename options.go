package amp

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"
)

// Option represents a configuration option
type Option func(*Client)

// WithKey sets the project key every request is scoped to.
func WithKey(key string) Option {
	return func(c *Client) {
		c.key = key
	}
}

// WithDomain sets the base URL used when no agent table is configured.
func WithDomain(domain string) Option {
	return func(c *Client) {
		if domain != "" {
			c.domain = domain
		}
	}
}

// WithAPIPath sets the path between the base URL and the project key.
func WithAPIPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.apiPath = path
		}
	}
}

// WithDefaultUserID sets the user id for sessions created without one.
func WithDefaultUserID(id string) Option {
	return func(c *Client) {
		c.userID = id
	}
}

// WithTimeout sets the default per-request deadline of new sessions.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDefaultSessionTTL sets the idle TTL of new sessions. Zero disables expiry.
func WithDefaultSessionTTL(d time.Duration) Option {
	return func(c *Client) {
		c.sessionTTL = d
	}
}

// WithHistoryLimit sets how many settled requests each session keeps in
// its history. Zero or less disables history.
func WithHistoryLimit(n int) Option {
	return func(c *Client) {
		c.history = max(n, 0)
	}
}

// WithAgents routes requests across agent base URLs by weighted rendezvous
// hashing of the session's user id. It replaces the domain as request base.
func WithAgents(weights map[string]float64) Option {
	return func(c *Client) {
		c.agents = make(map[string]float64, len(weights))
		for agent, weight := range weights {
			c.agents[agent] = weight
		}
	}
}

// WithCircuitBreaker enables a circuit breaker per agent.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = &config
	}
}

// WithRateLimit caps requests across all operations with a token bucket.
// A request that finds the bucket empty is not sent; it resolves to its
// default with ErrRateLimited.
func WithRateLimit(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimit = &RateLimitConfig{MaxTokens: maxTokens, RefillRate: refillRate}
	}
}

// WithOperationRateLimit gives operation its own token bucket, overriding
// WithRateLimit for it.
func WithOperationRateLimit(operation string, maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		if c.opLimits == nil {
			c.opLimits = make(map[string]RateLimitConfig)
		}
		c.opLimits[operation] = RateLimitConfig{MaxTokens: maxTokens, RefillRate: refillRate}
	}
}

// WithTransport replaces the HTTP transport entirely.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient sets the net/http client of the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMiddleware adds middleware to the default transport.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateEndpointConfig()...)
	errors = append(errors, c.validateTimingConfig()...)
	errors = append(errors, c.validateAgentConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateRateLimitConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateEventConfig()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeConfig,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateEndpointConfig() []string {
	var errors []string

	if c.key == "" {
		errors = append(errors, "key is required")
	}
	if len(c.agents) == 0 {
		if u, err := url.Parse(c.domain); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("domain %q is not an absolute URL", c.domain))
		}
	}

	return errors
}

func (c *Client) validateTimingConfig() []string {
	var errors []string

	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}
	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.sessionTTL < 0 {
		errors = append(errors, "session TTL must be non-negative")
	}

	return errors
}

func (c *Client) validateAgentConfig() []string {
	var errors []string

	if len(c.agents) == 0 {
		return errors
	}

	usable := 0
	for agent, weight := range c.agents {
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			errors = append(errors, fmt.Sprintf("agent %q has a non-finite weight", agent))
			continue
		}
		if weight > 0 {
			usable++
		}
		if u, err := url.Parse(agent); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("agent %q is not an absolute URL", agent))
		}
	}
	if usable == 0 {
		errors = append(errors, "at least one agent needs a positive weight")
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.breaker != nil {
		if c.breaker.FailureThreshold < 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be non-negative")
		}
		if c.breaker.RecoveryTimeout < 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be non-negative")
		}
		if c.breaker.SuccessThreshold < 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be non-negative")
		}
	}

	return errors
}

func (c *Client) validateRateLimitConfig() []string {
	var errors []string

	check := func(name string, cfg RateLimitConfig) {
		if cfg.MaxTokens <= 0 {
			errors = append(errors, fmt.Sprintf("%s MaxTokens must be positive", name))
		}
		if cfg.RefillRate <= 0 {
			errors = append(errors, fmt.Sprintf("%s RefillRate must be positive", name))
		}
	}

	if c.rateLimit != nil {
		check("rateLimit", *c.rateLimit)
	}
	for operation, cfg := range c.opLimits {
		switch operation {
		case OperationObserve, OperationDecide, OperationDecideCond:
		default:
			errors = append(errors, fmt.Sprintf("rate limit for unknown operation %q", operation))
		}
		check("rateLimit["+operation+"]", cfg)
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}
