// Package rendezvous implements weighted highest-random-weight hashing over a
// table of agent endpoints.
package rendezvous

import (
	"math"
	"sort"

	"github.com/ambiyansyah-risyal/amp/internal/hashutil"
)

// Select picks the agent that serves id. Agents with a weight <= 0 are
// ignored entirely. With fewer than two usable agents the sole agent (or "")
// is returned without hashing.
//
// Each candidate k scores ln(UniformHash(k+id)) / w_k where w_k is its
// normalised weight; the highest score wins. Ties keep the lexically smaller
// agent so the result never depends on map iteration order.
func Select(id string, weights map[string]float64) string {
	agents := usable(weights)
	switch len(agents) {
	case 0:
		return ""
	case 1:
		return agents[0]
	}

	var sum float64
	for _, agent := range agents {
		sum += weights[agent]
	}

	best := ""
	maxScore := math.Inf(-1)
	for _, agent := range agents {
		weight := weights[agent] / sum
		score := math.Log(hashutil.UniformHash(agent+id)) / weight
		if best == "" || score > maxScore {
			best = agent
			maxScore = score
		}
	}
	return best
}

// Normalize returns the usable agents mapped to weights that sum to 1.
func Normalize(weights map[string]float64) map[string]float64 {
	agents := usable(weights)
	out := make(map[string]float64, len(agents))

	var sum float64
	for _, agent := range agents {
		sum += weights[agent]
	}
	for _, agent := range agents {
		out[agent] = weights[agent] / sum
	}
	return out
}

func usable(weights map[string]float64) []string {
	agents := make([]string, 0, len(weights))
	for agent, weight := range weights {
		if weight > 0 && !math.IsInf(weight, 0) && !math.IsNaN(weight) {
			agents = append(agents, agent)
		}
	}
	sort.Strings(agents)
	return agents
}
