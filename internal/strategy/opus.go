package strategy

import (
	"fmt"
	"strings"

	"github.com/songzhibin97/callbattle/internal/models"
)

// Opus favours liquid, mid-cap tokens with steady momentum.
type Opus struct{}

func (Opus) Agent() models.Agent { return models.AgentOpus }

func (Opus) Score(token models.Token, rng Rand) float64 {
	score := 0.0

	switch {
	case token.Volume24hUSD > 1_000_000:
		score += 30
	case token.Volume24hUSD > 500_000:
		score += 20
	case token.Volume24hUSD > 100_000:
		score += 10
	}

	// 10万到500万区间优先，其次5万到1000万
	switch {
	case token.MarketCapUSD >= 100_000 && token.MarketCapUSD <= 5_000_000:
		score += 25
	case token.MarketCapUSD >= 50_000 && token.MarketCapUSD <= 10_000_000:
		score += 15
	}

	switch {
	case token.PriceChange24hPct > 50:
		score += 20
	case token.PriceChange24hPct > 20:
		score += 15
	case token.PriceChange24hPct > 0:
		score += 10
	}

	switch {
	case token.TxnCount24h > 5000:
		score += 15
	case token.TxnCount24h > 1000:
		score += 10
	}

	return score + rng.Float64()*10
}

func (Opus) Reason(token models.Token, _ Rand) string {
	var clauses []string

	if token.Volume24hUSD > 500_000 {
		clauses = append(clauses, fmt.Sprintf("Strong 24h volume of %s", formatUSD(token.Volume24hUSD)))
	} else if token.Volume24hUSD > 100_000 {
		clauses = append(clauses, fmt.Sprintf("Healthy 24h volume of %s", formatUSD(token.Volume24hUSD)))
	}

	if token.MarketCapUSD >= 100_000 && token.MarketCapUSD <= 5_000_000 {
		clauses = append(clauses, fmt.Sprintf("Market cap of %s leaves room to grow", formatUSD(token.MarketCapUSD)))
	}

	if token.PriceChange24hPct > 20 {
		clauses = append(clauses, fmt.Sprintf("Momentum is building at +%.1f%%", token.PriceChange24hPct))
	} else if token.PriceChange24hPct > 0 {
		clauses = append(clauses, fmt.Sprintf("Trending up %.1f%% without overheating", token.PriceChange24hPct))
	}

	if token.TxnCount24h > 1000 {
		clauses = append(clauses, fmt.Sprintf("%d transactions show real participation", token.TxnCount24h))
	}

	if len(clauses) == 0 {
		clauses = append(clauses, fmt.Sprintf("%s has the most balanced profile on the board", token.Symbol))
	}

	return strings.Join(clauses, ". ") + "."
}

// Confidence is drawn from 60..90.
func (Opus) Confidence(rng Rand) int {
	return 60 + rng.IntN(31)
}
