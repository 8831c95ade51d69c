package strategy

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/callbattle/internal/models"
)

// Rand is the randomness source threaded through scoring and generation.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns a PCG-backed source. A zero seed derives one from the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Strategy 代理选币策略
type Strategy interface {
	Agent() models.Agent

	// Score ranks a candidate; values are only comparable within one selection.
	Score(token models.Token, rng Rand) float64

	// Reason explains a pick in the agent's voice.
	Reason(token models.Token, rng Rand) string

	// Confidence draws the confidence attached to a recorded call.
	Confidence(rng Rand) int
}

// ForAgent returns the built-in strategy for an agent.
func ForAgent(agent models.Agent) (Strategy, bool) {
	switch agent {
	case models.AgentOpus:
		return Opus{}, true
	case models.AgentCodex:
		return Codex{}, true
	default:
		return nil, false
	}
}

// formatUSD renders 1234567 as "$1.2M".
func formatUSD(v float64) string {
	switch {
	case v >= 1_000_000_000:
		return "$" + trimFloat(v/1_000_000_000) + "B"
	case v >= 1_000_000:
		return "$" + trimFloat(v/1_000_000) + "M"
	case v >= 1_000:
		return "$" + trimFloat(v/1_000) + "K"
	default:
		return "$" + trimFloat(v)
	}
}

func trimFloat(v float64) string {
	return decimal.NewFromFloat(v).Round(1).String()
}
