package battle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/ai"
	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/risk"
	"github.com/songzhibin97/callbattle/internal/strategy"
)

var ErrNoActiveRound = errors.New("no active round")

const defaultNarrationTimeout = 8 * time.Second

// PredictionGenerator creates the per-cycle market prediction
type PredictionGenerator interface {
	Generate(ctx context.Context) (*models.Prediction, error)
}

// CycleResult 单次选币周期的结果
type CycleResult struct {
	RoundID    string             `json:"round_id"`
	Skipped    bool               `json:"skipped"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Calls      []models.Call      `json:"calls"`
	Prediction *models.Prediction `json:"prediction,omitempty"`
}

// Manager keeps one round open and runs selection cycles against it.
type Manager struct {
	store       data.Store
	market      data.MarketDataProvider
	selector    *strategy.Selector
	riskManager risk.RiskManager
	recorder    *CallRecorder
	predictions PredictionGenerator
	strategies  []strategy.Strategy
	rng         strategy.Rand
	logger      *zap.Logger

	narrator         ai.Narrator
	narrationTimeout time.Duration

	now func() time.Time

	mu sync.Mutex
}

type Option func(*Manager)

// WithNarrator rewrites pick reasoning through an LLM, bounded by timeout.
func WithNarrator(narrator ai.Narrator, timeout time.Duration) Option {
	return func(m *Manager) {
		m.narrator = narrator
		if timeout > 0 {
			m.narrationTimeout = timeout
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(
	store data.Store,
	market data.MarketDataProvider,
	riskManager risk.RiskManager,
	predictions PredictionGenerator,
	rng strategy.Rand,
	logger *zap.Logger,
	opts ...Option,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if riskManager == nil {
		riskManager = risk.NewBasicRiskManager(risk.DefaultRiskParameters())
	}
	if rng == nil {
		rng = strategy.NewRand(0)
	}

	m := &Manager{
		store:            store,
		market:           market,
		selector:         strategy.NewSelector(riskManager),
		riskManager:      riskManager,
		recorder:         NewCallRecorder(store),
		predictions:      predictions,
		strategies:       []strategy.Strategy{strategy.Opus{}, strategy.Codex{}},
		rng:              rng,
		logger:           logger,
		narrationTimeout: defaultNarrationTimeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureActiveRound returns the open round, creating it when none exists.
func (m *Manager) EnsureActiveRound(ctx context.Context) (*models.Round, error) {
	round, err := m.store.EnsureActiveRound(ctx, m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to ensure active round: %w", err)
	}
	return round, nil
}

// ActiveRound returns ErrNoActiveRound instead of creating one.
func (m *Manager) ActiveRound(ctx context.Context) (*models.Round, error) {
	round, err := m.store.GetActiveRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active round: %w", err)
	}
	if round == nil {
		return nil, ErrNoActiveRound
	}
	return round, nil
}

// StartTimedRound is kept for older schedulers. Rounds are continuous, so
// the duration is ignored.
func (m *Manager) StartTimedRound(ctx context.Context, _ time.Duration) (*models.Round, error) {
	return m.EnsureActiveRound(ctx)
}

// ExpireRounds is a no-op: continuous rounds never expire.
func (m *Manager) ExpireRounds(context.Context) error {
	return nil
}

// RunCycle records one call per agent, opus first, then generates a prediction.
func (m *Manager) RunCycle(ctx context.Context) (*CycleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, err := m.EnsureActiveRound(ctx)
	if err != nil {
		return nil, err
	}
	result := &CycleResult{RoundID: round.ID, Calls: make([]models.Call, 0, len(m.strategies))}

	exclude, err := m.recentAddresses(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	candidates := m.market.ListCandidateTokens(ctx)
	eligible := m.selector.Eligible(candidates, exclude)
	if len(eligible) < len(m.strategies) {
		m.logger.Warn("not enough eligible tokens, skipping cycle",
			zap.String("round_id", round.ID),
			zap.Int("candidates", len(candidates)),
			zap.Int("eligible", len(eligible)))
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("only %d eligible tokens", len(eligible))
		return result, nil
	}

	for _, strat := range m.strategies {
		token, ok := m.selector.Select(eligible, exclude, strat, m.rng)
		if !ok {
			m.logger.Warn("selector found no token", zap.String("agent", string(strat.Agent())))
			result.Skipped = true
			result.SkipReason = fmt.Sprintf("no token for %s", strat.Agent())
			return result, nil
		}
		exclude[token.Address] = struct{}{}

		reasoning := m.narrate(ctx, strat, token)
		call, err := m.recorder.RecordCall(ctx, round.ID, strat.Agent(), token, reasoning, strat.Confidence(m.rng), m.now())
		if err != nil {
			return result, err
		}
		result.Calls = append(result.Calls, *call)

		m.logger.Info("call recorded",
			zap.String("agent", string(call.Agent)),
			zap.String("symbol", call.TokenSymbol),
			zap.String("address", call.TokenAddress),
			zap.Float64("entry_mcap", call.EntryMarketCap),
			zap.Int("confidence", call.Confidence))
	}

	if m.predictions != nil {
		prediction, err := m.predictions.Generate(ctx)
		if err != nil {
			m.logger.Error("prediction generation failed", zap.Error(err))
		} else {
			result.Prediction = prediction
		}
	}

	return result, nil
}

// recentAddresses collects tokens called by either agent inside the recency window.
func (m *Manager) recentAddresses(ctx context.Context, roundID string) (map[string]struct{}, error) {
	calls, err := m.store.ListRoundCalls(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list round calls: %w", err)
	}

	cutoff := m.now().Add(-m.riskManager.RecencyWindow())
	exclude := make(map[string]struct{})
	for _, c := range calls {
		if !c.CreatedAt.Before(cutoff) {
			exclude[c.TokenAddress] = struct{}{}
		}
	}
	return exclude, nil
}

func (m *Manager) narrate(ctx context.Context, strat strategy.Strategy, token models.Token) string {
	reasoning := strat.Reason(token, m.rng)
	if m.narrator == nil {
		return reasoning
	}

	nctx, cancel := context.WithTimeout(ctx, m.narrationTimeout)
	defer cancel()

	text, err := m.narrator.ExplainCall(nctx, &ai.CallNarration{
		Agent:    strat.Agent(),
		Token:    token,
		Fallback: reasoning,
	})
	if err != nil {
		m.logger.Warn("narration failed, using strategy reasoning",
			zap.String("agent", string(strat.Agent())), zap.Error(err))
		return reasoning
	}
	return text
}
