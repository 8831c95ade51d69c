package battle

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
)

// PriceUpdateResult 价格刷新统计
type PriceUpdateResult struct {
	RoundID   string `json:"round_id,omitempty"`
	Total     int    `json:"total"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Missing   int    `json:"missing"`
	Failed    int    `json:"failed"`
}

// PriceUpdater refreshes current and ATH valuations of the active round's calls.
type PriceUpdater struct {
	store  data.Store
	market data.MarketDataProvider
	logger *zap.Logger
	now    func() time.Time
}

func NewPriceUpdater(store data.Store, market data.MarketDataProvider, logger *zap.Logger) *PriceUpdater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceUpdater{
		store:  store,
		market: market,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UpdateActiveRound never fails because of a single row; only store reads
// abort the pass.
func (u *PriceUpdater) UpdateActiveRound(ctx context.Context) (*PriceUpdateResult, error) {
	round, err := u.store.GetActiveRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active round: %w", err)
	}
	result := &PriceUpdateResult{}
	if round == nil {
		return result, nil
	}
	result.RoundID = round.ID

	calls, err := u.store.ListRoundCalls(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list round calls: %w", err)
	}
	result.Total = len(calls)
	if len(calls) == 0 {
		return result, nil
	}

	addresses := make([]string, 0, len(calls))
	for _, c := range calls {
		addresses = append(addresses, c.TokenAddress)
	}
	valuations := u.market.GetValuationsBatch(ctx, addresses)

	for _, call := range calls {
		v, ok := valuations[call.TokenAddress]
		if !ok || !v.Valid() {
			result.Missing++
			continue
		}

		updated, changed := applyValuation(call, v)
		if !changed {
			result.Unchanged++
			continue
		}
		updated.UpdatedAt = u.now()

		if err := u.store.UpdateCallValuation(ctx, &updated); err != nil {
			result.Failed++
			u.logger.Error("failed to update call valuation",
				zap.String("call_id", call.ID),
				zap.String("symbol", call.TokenSymbol),
				zap.Error(err))
			continue
		}
		result.Updated++
	}

	u.logger.Info("price update finished",
		zap.String("round_id", result.RoundID),
		zap.Int("total", result.Total),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("missing", result.Missing),
		zap.Int("failed", result.Failed))

	return result, nil
}

// applyValuation folds a fresh valuation into a call. ATH only moves up.
func applyValuation(call models.Call, v models.Valuation) (models.Call, bool) {
	updated := call
	updated.CurrentMarketCap = v.MarketCapUSD
	if v.PriceUSD > 0 {
		updated.CurrentPrice = v.PriceUSD
	}
	updated.AthMarketCap = math.Max(call.AthMarketCap, v.MarketCapUSD)
	updated.RefreshMultipliers()

	changed := updated.CurrentMarketCap != call.CurrentMarketCap ||
		updated.CurrentPrice != call.CurrentPrice ||
		updated.AthMarketCap != call.AthMarketCap
	return updated, changed
}
