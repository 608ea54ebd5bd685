package amp

import (
	"sort"

	"github.com/ambiyansyah-risyal/amp/internal/rendezvous"
)

// SelectAgent deterministically picks the agent that serves userID from a
// weight table using weighted rendezvous hashing. Agents with weight <= 0 are
// never selected. It returns "" when no agent is usable.
func SelectAgent(userID string, weights map[string]float64) string {
	return rendezvous.Select(userID, weights)
}

// AgentPool routes users across a fixed weight table of agent base URLs and
// tracks a circuit breaker per agent when breakers are enabled.
type AgentPool struct {
	weights  map[string]float64
	breakers map[string]*CircuitBreaker
	metrics  *MetricsCollector
}

// NewAgentPool copies weights. A nil breaker config disables breakers.
func NewAgentPool(weights map[string]float64, breaker *CircuitBreakerConfig, metrics *MetricsCollector) *AgentPool {
	p := &AgentPool{
		weights: make(map[string]float64, len(weights)),
		metrics: metrics,
	}
	for agent, weight := range weights {
		p.weights[agent] = weight
	}

	if breaker != nil {
		p.breakers = make(map[string]*CircuitBreaker, len(weights))
		for agent := range rendezvous.Normalize(weights) {
			p.breakers[agent] = NewCircuitBreaker(*breaker)
		}
	}
	return p
}

// Len returns the number of usable agents.
func (p *AgentPool) Len() int {
	if p == nil {
		return 0
	}
	return len(rendezvous.Normalize(p.weights))
}

// Agents returns the usable agents in lexical order.
func (p *AgentPool) Agents() []string {
	if p == nil {
		return nil
	}
	normalized := rendezvous.Normalize(p.weights)
	agents := make([]string, 0, len(normalized))
	for agent := range normalized {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// Weights returns the normalized weight table.
func (p *AgentPool) Weights() map[string]float64 {
	if p == nil {
		return nil
	}
	return rendezvous.Normalize(p.weights)
}

// Lookup returns the agent for userID without counting it as a routing
// decision.
func (p *AgentPool) Lookup(userID string) string {
	if p == nil {
		return ""
	}
	return rendezvous.Select(userID, p.weights)
}

// Select returns the agent for userID, or "" when the pool is empty, and
// records the selection.
func (p *AgentPool) Select(userID string) string {
	agent := p.Lookup(userID)
	if agent != "" {
		p.metrics.RecordAgentSelection(agent)
	}
	return agent
}

// Allow reports whether agent's breaker admits a request.
func (p *AgentPool) Allow(agent string) bool {
	cb := p.breaker(agent)
	if cb == nil {
		return true
	}
	allowed := cb.Allow()
	p.metrics.RecordCircuitBreakerState(agent, cb.State())
	return allowed
}

// Report feeds a request result into agent's breaker.
func (p *AgentPool) Report(agent string, failed bool) {
	cb := p.breaker(agent)
	if cb == nil {
		return
	}
	if failed {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	p.metrics.RecordCircuitBreakerState(agent, cb.State())
}

// BreakerState returns agent's breaker state; StateClosed without breakers.
func (p *AgentPool) BreakerState(agent string) CircuitState {
	cb := p.breaker(agent)
	if cb == nil {
		return StateClosed
	}
	return cb.State()
}

func (p *AgentPool) breaker(agent string) *CircuitBreaker {
	if p == nil || p.breakers == nil {
		return nil
	}
	return p.breakers[agent]
}
