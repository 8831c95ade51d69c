// Package prediction generates daily yes/no price questions, lets both agents
// take a side, and resolves them against live reference prices.
package prediction

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/ai"
	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/strategy"
)

const (
	DirectionAbove = "above"
	DirectionBelow = "below"

	CategoryCrypto = "crypto"

	contrarianChance = 0.3
)

// Assets are the reference assets questions are asked about.
var Assets = []string{"BTC", "ETH", "SOL"}

// Template 题目模板：资产与目标价取整步长
type Template struct {
	Asset     string
	Increment float64
}

var Templates = []Template{
	{Asset: "BTC", Increment: 1000},
	{Asset: "BTC", Increment: 500},
	{Asset: "ETH", Increment: 100},
	{Asset: "ETH", Increment: 50},
	{Asset: "SOL", Increment: 10},
	{Asset: "SOL", Increment: 5},
}

// Stance 代理对预测的立场
type Stance struct {
	Position   models.Position
	Confidence int
	Reasoning  string
}

type Generator struct {
	prices data.ReferencePriceProvider
	store  data.Store
	logger *zap.Logger

	narrator         ai.Narrator
	narrationTimeout time.Duration

	mu  sync.Mutex
	rng strategy.Rand
	now func() time.Time
}

func NewGenerator(prices data.ReferencePriceProvider, store data.Store, rng strategy.Rand, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = strategy.NewRand(0)
	}
	return &Generator{
		prices:           prices,
		store:            store,
		logger:           logger,
		narrationTimeout: 8 * time.Second,
		rng:              rng,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetNarrator enables LLM-written stance reasoning.
func (g *Generator) SetNarrator(narrator ai.Narrator, timeout time.Duration) {
	g.narrator = narrator
	if timeout > 0 {
		g.narrationTimeout = timeout
	}
}

// Generate builds one question, takes both stances and stores the prediction.
func (g *Generator) Generate(ctx context.Context) (*models.Prediction, error) {
	prices := g.prices.GetReferencePrices(ctx, Assets)

	g.mu.Lock()
	p, err := g.draft(prices)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.OpusReasoning = g.narrateStance(ctx, models.AgentOpus, p, p.OpusReasoning)
	p.CodexReasoning = g.narrateStance(ctx, models.AgentCodex, p, p.CodexReasoning)

	if err := g.store.CreatePrediction(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}

	g.logger.Info("prediction generated",
		zap.String("question", p.Question),
		zap.Float64("current_price", p.CurrentPrice),
		zap.String("opus", string(p.OpusPosition)),
		zap.String("codex", string(p.CodexPosition)))

	return p, nil
}

// draft does every random draw. Callers hold g.mu.
func (g *Generator) draft(prices map[string]float64) (*models.Prediction, error) {
	tmpl := Templates[g.rng.IntN(len(Templates))]
	current := prices[tmpl.Asset]
	if current <= 0 {
		return nil, fmt.Errorf("no reference price for %s", tmpl.Asset)
	}

	variance := 0.01 + g.rng.Float64()*0.03
	if g.rng.Float64() < 0.5 {
		variance = -variance
	}
	target := roundToIncrement(current*(1+variance), tmpl.Increment)

	direction := DirectionAbove
	if g.rng.Float64() < 0.5 {
		direction = DirectionBelow
	}

	opus := g.stance(current, target, direction)
	codex := g.stance(current, target, direction)
	if opus.Position == codex.Position && g.rng.Float64() < contrarianChance {
		codex.Position = flip(codex.Position)
		codex.Confidence = 50 + g.rng.IntN(31)
	}
	opus.Reasoning = stanceReasoning(models.AgentOpus, tmpl.Asset, current, target, direction, opus.Position)
	codex.Reasoning = stanceReasoning(models.AgentCodex, tmpl.Asset, current, target, direction, codex.Position)

	return &models.Prediction{
		Question:        Question(tmpl.Asset, direction, target),
		Category:        CategoryCrypto,
		Asset:           tmpl.Asset,
		Direction:       direction,
		TargetPrice:     target,
		CurrentPrice:    current,
		OpusPosition:    opus.Position,
		OpusConfidence:  opus.Confidence,
		OpusReasoning:   opus.Reasoning,
		CodexPosition:   codex.Position,
		CodexConfidence: codex.Confidence,
		CodexReasoning:  codex.Reasoning,
		CreatedAt:       g.now(),
	}, nil
}

// stance draws a biased YES/NO. The noise band widens as the target nears
// the current price.
func (g *Generator) stance(current, target float64, direction string) Stance {
	base := 0.35
	if holds(current, target, direction) {
		base = 0.65
	}

	distance := math.Abs(current-target) / current
	band := 0.2
	switch {
	case distance < 0.02:
		band = 0.5
	case distance < 0.05:
		band = 0.3
	}

	p := base + (g.rng.Float64()-0.5)*band
	position := models.PositionNo
	if p > 0.5 {
		position = models.PositionYes
	}
	confidence := int(math.Min(95, math.Round(50+math.Abs(p-0.5)*100)))

	return Stance{Position: position, Confidence: confidence}
}

func (g *Generator) narrateStance(ctx context.Context, agent models.Agent, p *models.Prediction, fallback string) string {
	if g.narrator == nil {
		return fallback
	}

	position, confidence := p.OpusPosition, p.OpusConfidence
	if agent == models.AgentCodex {
		position, confidence = p.CodexPosition, p.CodexConfidence
	}

	nctx, cancel := context.WithTimeout(ctx, g.narrationTimeout)
	defer cancel()

	text, err := g.narrator.ExplainStance(nctx, &ai.StanceNarration{
		Agent:        agent,
		Question:     p.Question,
		CurrentPrice: p.CurrentPrice,
		Position:     position,
		Confidence:   confidence,
	})
	if err != nil {
		g.logger.Warn("stance narration failed", zap.String("agent", string(agent)), zap.Error(err))
		return fallback
	}
	return text
}

// Question renders the canonical question text the resolver can parse back.
func Question(asset, direction string, target float64) string {
	return fmt.Sprintf("Will %s be %s $%s by 23:59 UTC today?", asset, direction, formatPrice(target))
}

func holds(price, target float64, direction string) bool {
	if direction == DirectionBelow {
		return price < target
	}
	return price > target
}

func flip(p models.Position) models.Position {
	if p == models.PositionYes {
		return models.PositionNo
	}
	return models.PositionYes
}

func roundToIncrement(v, increment float64) float64 {
	inc := decimal.NewFromFloat(increment)
	rounded := decimal.NewFromFloat(v).Div(inc).Round(0).Mul(inc)
	if !rounded.IsPositive() {
		return increment
	}
	return rounded.InexactFloat64()
}

// formatPrice renders 70000 as "70,000" and 3512.5 as "3,512.50".
func formatPrice(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	whole := d.Truncate(0)

	digits := whole.Abs().String()
	var b strings.Builder
	if whole.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if frac := d.Sub(whole); !frac.IsZero() {
		b.WriteString(strings.TrimPrefix(frac.Abs().StringFixed(2), "0"))
	}
	return b.String()
}

func stanceReasoning(agent models.Agent, asset string, current, target float64, direction string, position models.Position) string {
	gap := math.Abs(current-target) / current * 100
	where := "below"
	if current > target {
		where = "above"
	}

	if agent == models.AgentOpus {
		return fmt.Sprintf("%s trades at $%s, %.1f%% %s the $%s line. Taking %s on a %s close.",
			asset, formatPrice(current), gap, where, formatPrice(target), position, direction)
	}
	if position == models.PositionYes {
		return fmt.Sprintf("%s has the legs for it. %s all day.", asset, position)
	}
	return fmt.Sprintf("Fading the crowd on %s. %s.", asset, position)
}
