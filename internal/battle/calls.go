package battle

import (
	"context"
	"fmt"
	"time"

	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
)

// CallRecorder 持久化代理喊单
type CallRecorder struct {
	store data.Store
}

func NewCallRecorder(store data.Store) *CallRecorder {
	return &CallRecorder{store: store}
}

// RecordCall inserts a call whose entry, current and ATH valuation all equal
// the snapshot market cap.
func (r *CallRecorder) RecordCall(ctx context.Context, roundID string, agent models.Agent, token models.Token, reasoning string, confidence int, at time.Time) (*models.Call, error) {
	call := &models.Call{
		RoundID:          roundID,
		Agent:            agent,
		TokenAddress:     token.Address,
		TokenSymbol:      token.Symbol,
		TokenName:        token.Name,
		Chain:            token.Chain,
		EntryPrice:       token.PriceUSD,
		CurrentPrice:     token.PriceUSD,
		EntryMarketCap:   token.MarketCapUSD,
		CurrentMarketCap: token.MarketCapUSD,
		AthMarketCap:     token.MarketCapUSD,
		Reasoning:        reasoning,
		Confidence:       confidence,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
	call.RefreshMultipliers()

	if err := r.store.CreateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("failed to record %s call: %w", agent, err)
	}
	return call, nil
}
