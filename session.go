package amp

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ambiyansyah-risyal/amp/internal/hashutil"
)

// Session is one user's interaction context. It assigns a strictly
// increasing index to every request and resets its identity when reused
// after its TTL has elapsed. A Session is safe for concurrent use.
type Session struct {
	client *Client

	mu      sync.Mutex
	id      string
	userID  string
	index   int64
	created time.Time
	updated time.Time
	ttl     time.Duration
	timeout time.Duration
	resumed bool

	properties map[string]any
	history    []HistoryEntry
}

// HistoryEntry is a request the session sent, recorded when it settled.
type HistoryEntry struct {
	Operation string          `json:"operation"`
	Name      string          `json:"name"`
	SessionID string          `json:"sessionId"`
	Index     int64           `json:"index"`
	Agent     string          `json:"agent"`
	RequestID string          `json:"requestId"`
	Settled   time.Time       `json:"settled"`
	TimedOut  bool            `json:"timedOut"`
	Err       string          `json:"error,omitempty"`
	Body      json.RawMessage `json:"body"`
}

// ID returns the current session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// UserID returns the end user identifier. It survives resets.
func (s *Session) UserID() string {
	return s.userID
}

// Index returns the index the next request will carry.
func (s *Session) Index() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Created returns when the current identity was created.
func (s *Session) Created() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Updated returns when the session last completed a request or reset.
func (s *Session) Updated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// TTL returns the idle TTL; zero means the session never expires.
func (s *Session) TTL() time.Duration { return s.ttl }

// Timeout returns the default per-request deadline.
func (s *Session) Timeout() time.Duration { return s.timeout }

// Resumed reports whether the session was restored from a token.
func (s *Session) Resumed() bool { return s.resumed }

// Properties returns the properties the session was created with.
func (s *Session) Properties() map[string]any {
	return maps.Clone(s.properties)
}

// History returns the most recent settled requests, oldest first. Requests
// rejected before sending are not recorded.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Agent returns the agent base URL this session's requests are routed to.
func (s *Session) Agent() string {
	return s.client.pool.Lookup(s.userID)
}

// ticket is the identity snapshot one request is issued under.
type ticket struct {
	sessionID string
	index     int64
}

// expireLocked resets identity when the TTL has elapsed. Callers hold s.mu.
func (s *Session) expireLocked(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.updated) <= s.ttl {
		return
	}

	previous := s.id
	s.id = hashutil.MustRandomID(hashutil.DefaultIDLength)
	s.created = now
	s.updated = now
	s.index = 1

	s.client.metrics.RecordSessionReset()
	s.client.logger.Info("Session expired, identity reset", "previousSessionId", previous, "sessionId", s.id, "userId", s.userID)
}

// expire applies the TTL check without claiming an index.
func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.client.now())
}

// claim applies the TTL check and takes the next index as one step.
func (s *Session) claim() ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.client.now())
	t := ticket{sessionID: s.id, index: s.index}
	s.index++
	return t
}

func (s *Session) touch() {
	now := s.client.now()
	s.mu.Lock()
	s.updated = now
	s.mu.Unlock()
}

// settle touches the session and records p in its history.
func (s *Session) settle(p *pending, out outcome) {
	limit := s.client.history
	if limit <= 0 {
		s.touch()
		return
	}

	body, _ := json.Marshal(p.req.Body)
	b, _ := p.req.Body.(*requestBody)
	now := s.client.now()
	entry := HistoryEntry{
		Operation: p.operation,
		Agent:     p.agent,
		RequestID: p.req.RequestID,
		Settled:   now,
		TimedOut:  errors.Is(out.err, ErrEarlyTermination),
		Body:      body,
	}
	if b != nil {
		entry.Name = b.Name
		entry.SessionID = b.SessionID
		entry.Index = b.Index
	}
	if out.err != nil && !entry.TimedOut {
		entry.Err = out.err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = now
	s.history = append(s.history, entry)
	if over := len(s.history) - limit; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// Token serializes the session so it can be resumed with Client.ResumeSession.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	st := sessionToken{
		Index:   s.index,
		ID:      s.id,
		TTL:     s.ttl.Milliseconds(),
		Timeout: s.timeout.Milliseconds(),
		Updated: s.updated.UnixMilli(),
		Created: s.created.UnixMilli(),
		UserID:  s.userID,
	}
	s.mu.Unlock()

	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type sessionToken struct {
	Index   int64  `json:"index"`
	ID      string `json:"id"`
	TTL     int64  `json:"ttl"`
	Timeout int64  `json:"timeout,omitempty"`
	Updated int64  `json:"updated"`
	Created int64  `json:"created"`
	UserID  string `json:"userId"`
}

// pending is a request whose index is already assigned.
type pending struct {
	operation string
	agent     string
	timeout   time.Duration
	req       *Request
}

// prepare claims an index and builds the request synchronously so that
// indexes follow call order even when requests run concurrently.
func (s *Session) prepare(operation, name string, timeout time.Duration, fill func(*requestBody)) (*pending, ticket) {
	t := s.claim()

	body := &requestBody{
		Name:      name,
		Key:       s.client.key,
		SessionID: t.sessionID,
		UserID:    s.userID,
		Index:     t.index,
		TS:        s.client.now().UnixMilli(),
		Client:    clientInfo{Name: ClientName, Version: Version},
	}
	fill(body)

	agent := s.client.pool.Select(s.userID)
	return &pending{
		operation: operation,
		agent:     agent,
		timeout:   timeout,
		req: &Request{
			Operation: operation,
			URL:       s.client.endpoint(agent, operation),
			Agent:     agent,
			RequestID: uuid.NewString(),
			Body:      body,
		},
	}, t
}

// execute sends p through the guard. The session's updated time is set
// exactly once, by whichever outcome wins.
func (s *Session) execute(ctx context.Context, p *pending) outcome {
	c := s.client
	start := time.Now()

	c.metrics.RecordRequestStart(p.operation)
	defer c.metrics.RecordRequestEnd(p.operation)

	c.logger.Debug("Sending request", "requestID", p.req.RequestID, "operation", p.operation, "agent", p.agent, "url", p.req.URL)

	var out outcome
	if !c.limits.Allow(p.operation) {
		s.touch()
		out = outcome{err: &ClientError{
			Type:      ErrorTypeRateLimited,
			Message:   "client rate limit exceeded",
			Cause:     ErrRateLimited,
			RequestID: p.req.RequestID,
			Operation: p.operation,
			URL:       p.req.URL,
			Agent:     p.agent,
			Timestamp: time.Now(),
		}}
		c.logger.Warn("Rate limit exceeded", "requestID", p.req.RequestID, "operation", p.operation)
	} else if !c.pool.Allow(p.agent) {
		s.touch()
		out = outcome{err: &ClientError{
			Type:      ErrorTypeCircuitOpen,
			Message:   "circuit breaker is open",
			Cause:     ErrCircuitOpen,
			RequestID: p.req.RequestID,
			Operation: p.operation,
			URL:       p.req.URL,
			Agent:     p.agent,
			Timestamp: time.Now(),
		}}
		c.logger.Warn("Circuit breaker open", "requestID", p.req.RequestID, "agent", p.agent)
	} else {
		out = runGuarded(ctx, p.timeout, func(callCtx context.Context) (*Response, error) {
			return c.transport.Send(callCtx, p.req)
		}, func(o outcome) { s.settle(p, o) })
		c.pool.Report(p.agent, countsAsFailure(out.err))
	}

	label := "success"
	switch {
	case errors.Is(out.err, ErrEarlyTermination):
		label = "timeout"
		c.logger.Debug("Request deadline elapsed", "requestID", p.req.RequestID, "operation", p.operation, "timeout", p.timeout)
	case out.err != nil:
		label = "error"
		c.metrics.RecordError(errorType(out.err), p.operation)
		c.logger.Warn("Request failed", "requestID", p.req.RequestID, "operation", p.operation, "agent", p.agent, "error", out.err)
	}
	c.metrics.RecordRequest(p.operation, label, time.Since(start))

	return out
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEarlyTermination) {
		return true
	}
	// the caller gave up; says nothing about the agent
	if errors.Is(err, context.Canceled) {
		return false
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout:
			return true
		case ErrorTypeServer:
			return clientErr.StatusCode >= 500
		default:
			return false
		}
	}
	return true
}

func rawBody(resp *Response) []byte {
	if resp == nil {
		return nil
	}
	return resp.Body
}

// Observe reports an event. A request that outlives its deadline resolves
// with Acknowledged=false and no error; transport failures return the error
// alongside the result.
func (s *Session) Observe(ctx context.Context, name string, properties map[string]any, opts ...CallOption) (*ObserveResult, error) {
	return s.startObserve(name, properties, opts)(ctx)
}

// ObserveAsync is Observe with the index assigned before returning and cb
// invoked exactly once from another goroutine.
func (s *Session) ObserveAsync(ctx context.Context, name string, properties map[string]any, cb func(*ObserveResult, error), opts ...CallOption) {
	run := s.startObserve(name, properties, opts)
	go func() {
		res, err := run(ctx)
		if cb != nil {
			cb(res, err)
		}
	}()
}

func (s *Session) startObserve(name string, properties map[string]any, opts []CallOption) func(context.Context) (*ObserveResult, error) {
	cfg := newCallConfig(s.timeout, opts)
	if properties == nil {
		properties = map[string]any{}
	}

	p, t := s.prepare(OperationObserve, name, cfg.timeout, func(b *requestBody) {
		b.Properties = properties
	})

	return func(ctx context.Context) (*ObserveResult, error) {
		res := &ObserveResult{Name: name, Index: t.index, Agent: p.agent}

		out := s.execute(ctx, p)
		res.Raw = rawBody(out.resp)
		switch {
		case errors.Is(out.err, ErrEarlyTermination):
			return res, nil
		case out.err != nil:
			return res, out.err
		}
		res.Acknowledged = true
		return res, nil
	}
}

// Decide asks the agent to rank candidates and returns the chosen value(s).
// It never returns a nil Decision. Validation failures return the first
// candidate without a network call. A deadline that elapses first resolves to
// the first limit candidates with Fallback set and no error; transport
// failures return the same default together with the error.
func (s *Session) Decide(ctx context.Context, name string, candidates Candidates, opts ...CallOption) (*Decision, error) {
	run, early, err := s.startDecide(name, candidates, opts)
	if run == nil {
		return early, err
	}
	return run(ctx)
}

// DecideAsync is Decide with the index assigned before returning. cb is
// invoked exactly once: synchronously for validation failures, otherwise
// from another goroutine.
func (s *Session) DecideAsync(ctx context.Context, name string, candidates Candidates, cb func(*Decision, error), opts ...CallOption) {
	run, early, err := s.startDecide(name, candidates, opts)
	if run == nil {
		if cb != nil {
			cb(early, err)
		}
		return
	}
	go func() {
		d, err := run(ctx)
		if cb != nil {
			cb(d, err)
		}
	}()
}

func (s *Session) startDecide(name string, candidates Candidates, opts []CallOption) (func(context.Context) (*Decision, error), *Decision, error) {
	cfg := newCallConfig(s.timeout, opts)
	s.expire()

	if reason, err := s.checkCandidates(OperationDecide, candidates); err != nil {
		d := &Decision{Name: name, Values: []any{}, Fallback: true, Reason: reason}
		if first := firstOf(candidates); first != nil {
			d.Values = []any{first}
		}
		return nil, d, err
	}

	exp := Expand(candidates)
	defaults := exp.All[:min(cfg.limit, len(exp.All))]

	p, t := s.prepare(OperationDecide, name, cfg.timeout, func(b *requestBody) {
		b.Decision = &decisionBody{Candidates: exp.RequestSafe, Limit: cfg.limit}
	})

	run := func(ctx context.Context) (*Decision, error) {
		d := &Decision{Name: name, Index: t.index, Agent: p.agent}

		out := s.execute(ctx, p)
		d.Raw = rawBody(out.resp)

		if out.err != nil {
			s.fallback(d, defaults, OperationDecide, fallbackReason(out.err))
			if errors.Is(out.err, ErrEarlyTermination) {
				return d, nil
			}
			return d, out.err
		}

		values, err := decodeDecision(d.Raw, exp.All, cfg.limit)
		if err != nil {
			s.fallback(d, defaults, OperationDecide, ReasonMissingIndex)
			return d, s.decodeError(p, err)
		}
		if len(values) == 0 {
			s.fallback(d, defaults, OperationDecide, ReasonMissingIndex)
			return d, nil
		}
		d.Values = values
		return d, nil
	}
	return run, nil, nil
}

// DecideCond requests one decision per context for a future event. eventName
// and contexts are required. Fallbacks map every context to the first
// candidate.
func (s *Session) DecideCond(ctx context.Context, name string, candidates Candidates, eventName string, contexts map[string]any, opts ...CallOption) (*ConditionalDecision, error) {
	run, early, err := s.startDecideCond(name, candidates, eventName, contexts, opts)
	if run == nil {
		return early, err
	}
	return run(ctx)
}

// DecideCondAsync is DecideCond with the same callback contract as DecideAsync.
func (s *Session) DecideCondAsync(ctx context.Context, name string, candidates Candidates, eventName string, contexts map[string]any, cb func(*ConditionalDecision, error), opts ...CallOption) {
	run, early, err := s.startDecideCond(name, candidates, eventName, contexts, opts)
	if run == nil {
		if cb != nil {
			cb(early, err)
		}
		return
	}
	go func() {
		d, err := run(ctx)
		if cb != nil {
			cb(d, err)
		}
	}()
}

func (s *Session) startDecideCond(name string, candidates Candidates, eventName string, contexts map[string]any, opts []CallOption) (func(context.Context) (*ConditionalDecision, error), *ConditionalDecision, error) {
	cfg := newCallConfig(s.timeout, opts)
	s.expire()

	early := &ConditionalDecision{Name: name, Event: eventName, Decisions: map[string]any{}, Fallback: true}
	fillAll := func(value any) {
		for label := range contexts {
			early.Decisions[label] = value
		}
	}

	switch {
	case eventName == "":
		early.Reason = ReasonInvalidRequest
		fillAll(firstOf(candidates))
		return nil, early, ErrMissingEventName
	case len(contexts) == 0:
		early.Reason = ReasonInvalidRequest
		return nil, early, ErrMissingContexts
	}

	if reason, err := s.checkCandidates(OperationDecideCond, candidates); err != nil {
		early.Reason = reason
		fillAll(firstOf(candidates))
		return nil, early, err
	}

	exp := Expand(candidates)
	def := exp.All[0]

	p, t := s.prepare(OperationDecideCond, name, cfg.timeout, func(b *requestBody) {
		b.Decision = &decisionBody{Candidates: exp.RequestSafe, Limit: cfg.limit}
		b.ConditionalEvent = &conditionalEvent{Event: eventName, Contexts: contexts}
	})

	run := func(ctx context.Context) (*ConditionalDecision, error) {
		d := &ConditionalDecision{Name: name, Event: eventName, Decisions: make(map[string]any, len(contexts)), Index: t.index, Agent: p.agent}
		fallbackAll := func(reason FallbackReason) {
			for label := range contexts {
				d.Decisions[label] = def
			}
			d.Fallback = true
			d.Reason = reason
			s.client.metrics.RecordFallback(OperationDecideCond, reason)
		}

		out := s.execute(ctx, p)
		d.Raw = rawBody(out.resp)

		if out.err != nil {
			fallbackAll(fallbackReason(out.err))
			if errors.Is(out.err, ErrEarlyTermination) {
				return d, nil
			}
			return d, out.err
		}

		indexes, err := decodeConditional(d.Raw)
		if err != nil {
			fallbackAll(ReasonMissingIndex)
			return d, s.decodeError(p, err)
		}

		missing := 0
		for label := range contexts {
			idx, ok := indexes[label]
			if !ok || idx < 0 || idx >= len(exp.All) {
				d.Decisions[label] = def
				missing++
				continue
			}
			d.Decisions[label] = exp.All[idx]
		}
		if missing > 0 {
			d.Fallback = true
			d.Reason = ReasonMissingIndex
			s.client.metrics.RecordFallback(OperationDecideCond, ReasonMissingIndex)
		}
		return d, nil
	}
	return run, nil, nil
}

// checkCandidates enforces the non-empty and MaxCandidates rules before any
// index is claimed.
func (s *Session) checkCandidates(operation string, candidates Candidates) (FallbackReason, error) {
	count := 0
	if candidates != nil {
		count = candidates.Count()
	}

	var reason FallbackReason
	var err error
	switch {
	case count == 0:
		reason, err = ReasonNoCandidates, ErrNoCandidates
	case count > MaxCandidates:
		reason, err = ReasonTooManyCandidates, ErrTooManyCandidates
	default:
		return ReasonNone, nil
	}

	s.client.metrics.RecordFallback(operation, reason)
	s.client.metrics.RecordError(ErrorTypeValidation, operation)
	s.client.logger.Warn("Rejected candidates", "operation", operation, "count", count, "error", err)
	return reason, err
}

func (s *Session) fallback(d *Decision, defaults []any, operation string, reason FallbackReason) {
	d.Values = append([]any(nil), defaults...)
	d.Fallback = true
	d.Reason = reason
	s.client.metrics.RecordFallback(operation, reason)
}

func (s *Session) decodeError(p *pending, err error) error {
	s.client.metrics.RecordError(ErrorTypeDecode, p.operation)
	return &ClientError{
		Type:      ErrorTypeDecode,
		Message:   "agent response is not valid JSON",
		Cause:     err,
		RequestID: p.req.RequestID,
		Operation: p.operation,
		URL:       p.req.URL,
		Agent:     p.agent,
		Timestamp: time.Now(),
	}
}

func fallbackReason(err error) FallbackReason {
	switch {
	case errors.Is(err, ErrEarlyTermination):
		return ReasonTimeout
	case errors.Is(err, ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonTransport
	}
}

func firstOf(candidates Candidates) any {
	if candidates == nil {
		return nil
	}
	return candidates.First()
}

type decideResponse struct {
	Index   *int            `json:"index"`
	Indexes json.RawMessage `json:"indexes"`
}

// decodeDecision maps the agent's index or indexes into all. An empty or
// out-of-range answer yields no values.
func decodeDecision(raw []byte, all []any, limit int) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var resp decideResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	var indexes []int
	if len(resp.Indexes) > 0 && string(resp.Indexes) != "null" {
		if err := json.Unmarshal(resp.Indexes, &indexes); err != nil {
			return nil, err
		}
	} else if resp.Index != nil {
		indexes = []int{*resp.Index}
	}

	values := make([]any, 0, min(limit, len(indexes)))
	for _, idx := range indexes {
		if len(values) == limit {
			break
		}
		if idx < 0 || idx >= len(all) {
			return nil, nil
		}
		values = append(values, all[idx])
	}
	return values, nil
}

func decodeConditional(raw []byte) (map[string]int, error) {
	if len(raw) == 0 {
		return map[string]int{}, nil
	}

	var resp struct {
		Indexes map[string]int `json:"indexes"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Indexes == nil {
		resp.Indexes = map[string]int{}
	}
	return resp.Indexes, nil
}
