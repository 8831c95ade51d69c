package data

import (
	"context"
	"time"

	"github.com/songzhibin97/callbattle/internal/models"
)

// MarketDataProvider 负责候选代币和估值查询
type MarketDataProvider interface {
	// ListCandidateTokens returns trending tokens. Provider failures yield an empty slice.
	ListCandidateTokens(ctx context.Context) []models.Token

	// GetValuation looks up a single token address
	GetValuation(ctx context.Context, address string) (*models.Valuation, bool)

	// GetValuationsBatch looks up many addresses; missing keys are failed lookups
	GetValuationsBatch(ctx context.Context, addresses []string) map[string]models.Valuation
}

// ReferencePriceProvider 负责主流资产参考价格
type ReferencePriceProvider interface {
	// GetReferencePrices always returns a price for every requested symbol
	GetReferencePrices(ctx context.Context, symbols []string) map[string]float64
}

// Store 处理对战数据的持久化
type Store interface {
	// EnsureActiveRound atomically returns the active round, creating it when absent
	EnsureActiveRound(ctx context.Context, now time.Time) (*models.Round, error)

	// GetActiveRound returns nil when no round is active
	GetActiveRound(ctx context.Context) (*models.Round, error)

	ListRoundCalls(ctx context.Context, roundID string) ([]models.Call, error)

	// ListCalls returns every call, optionally filtered by agent (empty = all)
	ListCalls(ctx context.Context, agent models.Agent) ([]models.Call, error)

	CreateCall(ctx context.Context, call *models.Call) error

	// UpdateCallValuation stores the refreshed valuation fields of a call
	UpdateCallValuation(ctx context.Context, call *models.Call) error

	CreateRoundResult(ctx context.Context, result *models.RoundResult) error

	ListRoundResults(ctx context.Context, limit int) ([]models.RoundResult, error)

	CreatePrediction(ctx context.Context, p *models.Prediction) error

	// ListUnresolvedPredictions returns unresolved predictions created at or after since
	ListUnresolvedPredictions(ctx context.Context, since time.Time) ([]models.Prediction, error)

	ListPredictions(ctx context.Context, limit int) ([]models.Prediction, error)

	// ResolvePrediction sets the result once; it reports false if the row was already resolved
	ResolvePrediction(ctx context.Context, id string, result models.Position, at time.Time) (bool, error)

	// AgentAggregates summarises all historical calls per agent
	AgentAggregates(ctx context.Context) ([]models.AgentAggregate, error)
}
