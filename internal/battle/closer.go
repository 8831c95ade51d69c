package battle

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
)

// Closer snapshots all-time performance into a RoundResult. It does not
// change any round's status.
type Closer struct {
	store  data.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewCloser(store data.Store, logger *zap.Logger) *Closer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Closer{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Closer) Close(ctx context.Context) (*models.RoundResult, error) {
	aggregates, err := c.store.AgentAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent aggregates: %w", err)
	}

	// 没有喊单的代理按 1 倍计算
	avg := map[models.Agent]float64{
		models.AgentOpus:  1,
		models.AgentCodex: 1,
	}
	for _, a := range aggregates {
		if a.Calls > 0 {
			avg[a.Agent] = a.AvgMultiplier
		}
	}

	opus := balanceFor(avg[models.AgentOpus])
	codex := balanceFor(avg[models.AgentCodex])

	result := &models.RoundResult{CreatedAt: c.now()}
	switch opus.Cmp(codex) {
	case 1:
		result.Winner = string(models.AgentOpus)
		result.Action = models.ActionBuybackBurn
	case -1:
		result.Winner = string(models.AgentCodex)
		result.Action = models.ActionAirdrop
	default:
		result.Winner = models.WinnerDraw
		result.Action = models.ActionNone
	}
	result.OpusBalance = opus.Round(2).InexactFloat64()
	result.CodexBalance = codex.Round(2).InexactFloat64()

	if err := c.store.CreateRoundResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to create round result: %w", err)
	}

	c.logger.Info("round closed",
		zap.String("winner", result.Winner),
		zap.String("action", string(result.Action)),
		zap.Float64("opus_balance", result.OpusBalance),
		zap.Float64("codex_balance", result.CodexBalance))

	return result, nil
}

// balanceFor is unrounded; only the stored balances are cut to cents.
func balanceFor(avgMultiplier float64) decimal.Decimal {
	return decimal.NewFromFloat(models.StartingBalance).
		Mul(decimal.NewFromFloat(avgMultiplier))
}
