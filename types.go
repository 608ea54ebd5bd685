package amp

import "time"

// Operation names, used in endpoint paths, metrics and errors.
const (
	OperationObserve    = "observe"
	OperationDecide     = "decide"
	OperationDecideCond = "decideCond"
)

// FallbackReason says why a result came from the local default rather than
// from an agent.
type FallbackReason string

const (
	ReasonNone              FallbackReason = ""
	ReasonTimeout           FallbackReason = "timeout"
	ReasonTooManyCandidates FallbackReason = "too_many_candidates"
	ReasonNoCandidates      FallbackReason = "no_candidates"
	ReasonInvalidRequest    FallbackReason = "invalid_request"
	ReasonTransport         FallbackReason = "transport"
	ReasonCircuitOpen       FallbackReason = "circuit_open"
	ReasonRateLimited       FallbackReason = "rate_limited"
	ReasonMissingIndex      FallbackReason = "missing_index"
)

// Decision is the answer to a decide call. Values always holds at least one
// candidate when the candidate space was non-empty, sized by the requested
// limit. Fallback is set when Values is the local default.
type Decision struct {
	Name     string
	Values   []any
	Fallback bool
	Reason   FallbackReason
	Index    int64
	Agent    string
	Raw      []byte
}

// First returns the top pick, or nil for an empty decision.
func (d *Decision) First() any {
	if d == nil || len(d.Values) == 0 {
		return nil
	}
	return d.Values[0]
}

// ConditionalDecision holds one decision per context label.
type ConditionalDecision struct {
	Name      string
	Event     string
	Decisions map[string]any
	Fallback  bool
	Reason    FallbackReason
	Index     int64
	Agent     string
	Raw       []byte
}

// ObserveResult reports how an observe call ended. Acknowledged is false when
// the deadline elapsed first; that is not an error.
type ObserveResult struct {
	Name         string
	Acknowledged bool
	Index        int64
	Agent        string
	Raw          []byte
}

// CallOption tunes a single observe or decide call.
type CallOption func(*callConfig)

type callConfig struct {
	limit   int
	timeout time.Duration
}

// WithLimit sets how many ranked candidates a decide call returns. Values
// below 1 mean 1.
func WithLimit(n int) CallOption {
	return func(c *callConfig) {
		c.limit = n
	}
}

// WithCallTimeout overrides the session timeout for one call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.timeout = d
	}
}

func newCallConfig(defaultTimeout time.Duration, opts []CallOption) callConfig {
	cfg := callConfig{limit: 1, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.limit < 1 {
		cfg.limit = 1
	}
	if cfg.timeout <= 0 {
		cfg.timeout = defaultTimeout
	}
	return cfg
}

// wire types

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type decisionBody struct {
	Candidates []any `json:"candidates"`
	Limit      int   `json:"limit"`
}

type conditionalEvent struct {
	Event    string         `json:"event"`
	Contexts map[string]any `json:"contexts"`
}

type requestBody struct {
	Name             string            `json:"name"`
	Key              string            `json:"key,omitempty"`
	SessionID        string            `json:"sessionId"`
	UserID           string            `json:"userId"`
	Index            int64             `json:"index"`
	TS               int64             `json:"ts"`
	Client           clientInfo        `json:"client"`
	Properties       any               `json:"properties,omitempty"`
	Decision         *decisionBody     `json:"decision,omitempty"`
	ConditionalEvent *conditionalEvent `json:"conditional_event,omitempty"`
}
