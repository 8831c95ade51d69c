// Package performance derives simulated balances and ranking statistics
// from an agent's calls. Nothing here is persisted.
package performance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/callbattle/internal/models"
)

// Compute returns stats for both agents, including ones with no calls.
func Compute(calls []models.Call) map[models.Agent]models.AgentStats {
	byAgent := make(map[models.Agent][]models.Call, len(models.Agents))
	for _, c := range calls {
		byAgent[c.Agent] = append(byAgent[c.Agent], c)
	}

	stats := make(map[models.Agent]models.AgentStats, len(models.Agents))
	for _, agent := range models.Agents {
		stats[agent] = ForAgent(agent, byAgent[agent])
	}
	return stats
}

// ForAgent computes stats over calls, ignoring calls owned by other agents.
//
// The starting balance is split equally across every call, so balance is
// the starting balance times the mean multiplier.
func ForAgent(agent models.Agent, calls []models.Call) models.AgentStats {
	multipliers := make([]float64, 0, len(calls))
	for _, c := range calls {
		if c.Agent != agent {
			continue
		}
		multipliers = append(multipliers, c.Multiplier())
	}

	stats := models.AgentStats{
		Agent:   agent,
		Balance: models.StartingBalance,
	}
	n := len(multipliers)
	if n == 0 {
		return stats
	}

	start := decimal.NewFromFloat(models.StartingBalance)
	perCall := start.Div(decimal.NewFromInt(int64(n)))

	balance := decimal.Zero
	sum := decimal.Zero
	best := multipliers[0]
	for _, m := range multipliers {
		dm := decimal.NewFromFloat(m)
		balance = balance.Add(perCall.Mul(dm))
		sum = sum.Add(dm)
		if m > best {
			best = m
		}
	}

	sorted := append([]float64(nil), multipliers...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	pnl := balance.Sub(start)

	stats.TotalCalls = n
	stats.AvgMultiplier = round(sum.Div(decimal.NewFromInt(int64(n))), 4)
	// 降序排列后取 floor(n/2)，偶数长度时不是标准中位数
	stats.MedianMultiplier = sorted[n/2]
	stats.BestMultiplier = best
	stats.Balance = round(balance, 2)
	stats.PnL = round(pnl, 2)
	stats.PnLPercent = round(pnl.Mul(decimal.NewFromInt(100)).Div(start), 2)
	stats.Score = round(sum, 4)
	return stats
}

// Leaderboard orders stats by balance, highest first. Ties keep agent order.
func Leaderboard(stats map[models.Agent]models.AgentStats) []models.AgentStats {
	board := make([]models.AgentStats, 0, len(stats))
	for _, agent := range models.Agents {
		if s, ok := stats[agent]; ok {
			board = append(board, s)
		}
	}
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Balance > board[j].Balance
	})
	return board
}

func round(d decimal.Decimal, places int32) float64 {
	f, _ := d.Round(places).Float64()
	return f
}
