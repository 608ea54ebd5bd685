package amp

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/amp/internal/hashutil"
)

// Defaults applied by New.
const (
	DefaultDomain  = "https://amp.ai"
	DefaultAPIPath = "/api/core/v1/"
	DefaultTimeout = 1000 * time.Millisecond

	// DefaultHistoryLimit is how many settled requests a session keeps.
	DefaultHistoryLimit = 100
)

// Client holds project-wide configuration and creates sessions. It is safe
// for concurrent use; sessions share its transport, agent pool and metrics.
type Client struct {
	key        string
	domain     string
	apiPath    string
	userID     string
	timeout    time.Duration
	sessionTTL time.Duration
	history    int
	agents     map[string]float64
	breaker    *CircuitBreakerConfig
	rateLimit  *RateLimitConfig
	opLimits   map[string]RateLimitConfig
	transport  Transport
	httpClient *http.Client
	middleware []Middleware
	metrics    *MetricsCollector
	logger     Logger
	now        func() time.Time

	events        map[string]EventFunc
	enabledEvents []string

	pool            *AgentPool
	limits          *RateLimiterRegistry
	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		domain:  DefaultDomain,
		apiPath: DefaultAPIPath,
		timeout: DefaultTimeout,
		history: DefaultHistoryLimit,
		logger:  NopLogger,
		now:     time.Now,
	}

	for _, option := range options {
		option(client)
	}

	if client.logger == nil {
		client.logger = NopLogger
	}
	if client.transport == nil {
		client.transport = NewHTTPTransport(client.httpClient, client.middleware...)
	}

	agents := client.agents
	if len(agents) == 0 {
		agents = map[string]float64{client.domain: 1}
	}
	client.pool = NewAgentPool(agents, client.breaker, client.metrics)
	client.limits = client.buildLimits()

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Agents returns the pool requests are routed through.
func (c *Client) Agents() *AgentPool {
	return c.pool
}

// Metrics returns the configured collector, or nil.
func (c *Client) Metrics() *MetricsCollector {
	return c.metrics
}

// SessionOption configures a new session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	id         string
	userID     string
	timeout    time.Duration
	ttl        time.Duration
	properties map[string]any
}

// WithSessionID sets the session identifier instead of generating one.
func WithSessionID(id string) SessionOption {
	return func(c *sessionConfig) { c.id = id }
}

// WithUserID sets the end user the session belongs to.
func WithUserID(id string) SessionOption {
	return func(c *sessionConfig) { c.userID = id }
}

// WithProperties attaches properties to the session. The session start
// event reports them.
func WithProperties(properties map[string]any) SessionOption {
	return func(c *sessionConfig) { c.properties = properties }
}

// WithSessionTimeout sets the default per-request deadline of the session.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.timeout = d }
}

// WithSessionTTL sets how long the session may stay idle before its identity
// resets. Zero means never.
func WithSessionTTL(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.ttl = d }
}

// NewSession starts a session. It fails when the client is misconfigured.
func (c *Client) NewSession(opts ...SessionOption) (*Session, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	cfg := sessionConfig{
		userID:  c.userID,
		timeout: c.timeout,
		ttl:     c.sessionTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.id == "" {
		cfg.id = hashutil.MustRandomID(hashutil.DefaultIDLength)
	}
	if cfg.userID == "" {
		cfg.userID = hashutil.MustRandomID(5)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = c.timeout
	}
	if cfg.ttl < 0 {
		cfg.ttl = 0
	}

	now := c.now()
	s := &Session{
		client:     c,
		id:         cfg.id,
		userID:     cfg.userID,
		index:      1,
		created:    now,
		updated:    now,
		ttl:        cfg.ttl,
		timeout:    cfg.timeout,
		properties: maps.Clone(cfg.properties),
	}

	c.logger.Debug("Session created", "sessionId", s.id, "userId", s.userID, "ttl", s.ttl)
	c.runEvents(s)
	return s, nil
}

// ResumeSession restores a session from a token produced by Session.Token.
// Tokens that are malformed or whose TTL has elapsed yield a fresh session
// instead; Session.Resumed tells the two apart.
func (c *Client) ResumeSession(token string) (*Session, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	var st sessionToken
	if err := json.Unmarshal([]byte(token), &st); err != nil || st.ID == "" {
		if err == nil {
			err = fmt.Errorf("token has no session id")
		}
		c.logger.Warn("Discarding unreadable session token", "error", err)
		return c.NewSession()
	}

	now := c.now()
	ttl := time.Duration(st.TTL) * time.Millisecond
	updated := time.UnixMilli(st.Updated)
	if ttl > 0 && now.Sub(updated) >= ttl {
		c.logger.Debug("Session token expired", "sessionId", st.ID, "userId", st.UserID)
		opts := []SessionOption{WithSessionTTL(ttl)}
		if st.UserID != "" {
			opts = append(opts, WithUserID(st.UserID))
		}
		if st.Timeout > 0 {
			opts = append(opts, WithSessionTimeout(time.Duration(st.Timeout)*time.Millisecond))
		}
		return c.NewSession(opts...)
	}

	timeout := time.Duration(st.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = c.timeout
	}
	index := st.Index
	if index < 1 {
		index = 1
	}
	userID := st.UserID
	if userID == "" {
		userID = hashutil.MustRandomID(5)
	}

	s := &Session{
		client:  c,
		id:      st.ID,
		userID:  userID,
		index:   index,
		created: time.UnixMilli(st.Created),
		updated: updated,
		ttl:     ttl,
		timeout: timeout,
		resumed: true,
	}

	c.logger.Debug("Session resumed", "sessionId", s.id, "userId", s.userID, "index", s.index)
	return s, nil
}

// buildLimits returns nil when no rate limit is configured.
func (c *Client) buildLimits() *RateLimiterRegistry {
	if c.rateLimit == nil && len(c.opLimits) == 0 {
		return nil
	}

	var fallback Limiter
	if c.rateLimit != nil {
		fallback = newRateLimiter(c.rateLimit.MaxTokens, c.rateLimit.RefillRate, c.now)
	}
	registry := NewRateLimiterRegistry(fallback, c.metrics)
	for operation, cfg := range c.opLimits {
		registry.RegisterLimiter(operation, newRateLimiter(cfg.MaxTokens, cfg.RefillRate, c.now))
	}
	return registry
}

func (c *Client) usable() error {
	if c.key == "" {
		return ErrMissingKey
	}
	return c.validationError
}

// endpoint builds <base>/<apiPath>/<key>/<operation>.
func (c *Client) endpoint(base, operation string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	if path := strings.Trim(c.apiPath, "/"); path != "" {
		b.WriteByte('/')
		b.WriteString(path)
	}
	b.WriteByte('/')
	b.WriteString(c.key)
	b.WriteByte('/')
	b.WriteString(operation)
	return b.String()
}
