package strategy

import (
	"fmt"

	"github.com/songzhibin97/callbattle/internal/models"
)

// Codex chases low caps with explosive momentum.
type Codex struct{}

var codexPhrases = []string{
	"%s is still early. Small cap, loud chart, I'm in",
	"Momentum on %s is too strong to ignore",
	"%s looks like the next runner before the crowd notices",
	"Low float energy on %s. Sending it",
	"Chart on %s is vertical and the cap is tiny",
	"%s has the kind of volatility that pays",
}

func (Codex) Agent() models.Agent { return models.AgentCodex }

func (Codex) Score(token models.Token, rng Rand) float64 {
	score := 0.0

	switch {
	case token.MarketCapUSD < 500_000:
		score += 30
	case token.MarketCapUSD < 1_000_000:
		score += 20
	case token.MarketCapUSD < 3_000_000:
		score += 10
	}

	switch {
	case token.PriceChange24hPct > 100:
		score += 35
	case token.PriceChange24hPct > 50:
		score += 25
	case token.PriceChange24hPct > 20:
		score += 15
	}

	switch {
	case token.Volume24hUSD > 500_000:
		score += 10
	case token.Volume24hUSD > 100_000:
		score += 5
	}

	return score + rng.Float64()*15
}

func (Codex) Reason(token models.Token, rng Rand) string {
	phrase := codexPhrases[rng.IntN(len(codexPhrases))]
	return fmt.Sprintf(phrase, token.Symbol) + "."
}

// Confidence is drawn from 55..90.
func (Codex) Confidence(rng Rand) int {
	return 55 + rng.IntN(36)
}
