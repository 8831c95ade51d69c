package prediction

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/data"
	"github.com/songzhibin97/callbattle/internal/models"
)

// ResolveWindow bounds how old an unresolved prediction may be.
const ResolveWindow = 24 * time.Hour

var (
	targetPattern    = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	directionPattern = regexp.MustCompile(`(?i)\b(above|below)\b`)

	assetPatterns = map[string]*regexp.Regexp{
		"BTC": regexp.MustCompile(`(?i)\b(btc|bitcoin)\b`),
		"ETH": regexp.MustCompile(`(?i)\b(eth|ethereum)\b`),
		"SOL": regexp.MustCompile(`(?i)\b(sol|solana)\b`),
	}
)

// Terms 可验证的预测条件
type Terms struct {
	Asset     string
	Direction string
	Target    float64
}

// Outcome decides the result for a live price. Touching the target is NO.
func (t Terms) Outcome(price float64) models.Position {
	if holds(price, t.Target, t.Direction) {
		return models.PositionYes
	}
	return models.PositionNo
}

// ResolveResult 结算统计
type ResolveResult struct {
	Checked    int `json:"checked"`
	Resolved   int `json:"resolved"`
	Unmatched  int `json:"unmatched"`
	NoPrice    int `json:"no_price"`
	AlreadySet int `json:"already_set"`
}

type Resolver struct {
	prices data.ReferencePriceProvider
	store  data.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewResolver(prices data.ReferencePriceProvider, store data.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		prices: prices,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ResolveDue settles every unresolved prediction from the last 24 hours
// whose terms can be determined. Others stay pending.
func (r *Resolver) ResolveDue(ctx context.Context) (*ResolveResult, error) {
	now := r.now()
	pending, err := r.store.ListUnresolvedPredictions(ctx, now.Add(-ResolveWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved predictions: %w", err)
	}

	result := &ResolveResult{Checked: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	terms := make(map[string]Terms, len(pending))
	var symbols []string
	seen := make(map[string]struct{})
	for _, p := range pending {
		t, ok := TermsFor(p)
		if !ok {
			result.Unmatched++
			r.logger.Debug("prediction terms not recognised", zap.String("id", p.ID), zap.String("question", p.Question))
			continue
		}
		terms[p.ID] = t
		if _, dup := seen[t.Asset]; !dup {
			seen[t.Asset] = struct{}{}
			symbols = append(symbols, t.Asset)
		}
	}
	if len(terms) == 0 {
		return result, nil
	}

	prices := r.prices.GetReferencePrices(ctx, symbols)

	for _, p := range pending {
		t, ok := terms[p.ID]
		if !ok {
			continue
		}
		price := prices[t.Asset]
		if price <= 0 {
			result.NoPrice++
			continue
		}

		outcome := t.Outcome(price)
		updated, err := r.store.ResolvePrediction(ctx, p.ID, outcome, now)
		if err != nil {
			return result, fmt.Errorf("failed to resolve prediction %s: %w", p.ID, err)
		}
		if !updated {
			result.AlreadySet++
			continue
		}
		result.Resolved++

		r.logger.Info("prediction resolved",
			zap.String("id", p.ID),
			zap.String("asset", t.Asset),
			zap.Float64("target", t.Target),
			zap.Float64("price", price),
			zap.String("result", string(outcome)))
	}

	return result, nil
}

// TermsFor prefers the structured terms stored at generation and falls back
// to parsing the question text.
func TermsFor(p models.Prediction) (Terms, bool) {
	if p.Asset != "" && p.TargetPrice > 0 && (p.Direction == DirectionAbove || p.Direction == DirectionBelow) {
		return Terms{Asset: strings.ToUpper(p.Asset), Direction: p.Direction, Target: p.TargetPrice}, true
	}
	return ParseQuestion(p.Question)
}

// ParseQuestion extracts the asset, the first $-prefixed number and the
// above/below keyword.
func ParseQuestion(question string) (Terms, bool) {
	var t Terms

	for _, asset := range Assets {
		if assetPatterns[asset].MatchString(question) {
			t.Asset = asset
			break
		}
	}
	if t.Asset == "" {
		return Terms{}, false
	}

	m := targetPattern.FindStringSubmatch(question)
	if m == nil {
		return Terms{}, false
	}
	target, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || target <= 0 {
		return Terms{}, false
	}
	t.Target = target

	d := directionPattern.FindStringSubmatch(question)
	if d == nil {
		return Terms{}, false
	}
	t.Direction = strings.ToLower(d[1])

	return t, true
}
