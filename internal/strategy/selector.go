package strategy

import (
	"sort"

	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/risk"
)

// Selector 选出单个最高分的合格代币
type Selector struct {
	riskManager risk.RiskManager
}

func NewSelector(riskManager risk.RiskManager) *Selector {
	if riskManager == nil {
		riskManager = risk.NewBasicRiskManager(risk.DefaultRiskParameters())
	}
	return &Selector{riskManager: riskManager}
}

// Eligible drops excluded addresses and tokens the risk manager rejects.
func (s *Selector) Eligible(candidates []models.Token, exclude map[string]struct{}) []models.Token {
	eligible := make([]models.Token, 0, len(candidates))
	for _, token := range candidates {
		if _, skip := exclude[token.Address]; skip {
			continue
		}
		if !s.riskManager.CheckTokenRisk(token).IsAcceptable {
			continue
		}
		eligible = append(eligible, token)
	}
	return eligible
}

// Select returns the top scorer, or false when nothing is eligible.
func (s *Selector) Select(candidates []models.Token, exclude map[string]struct{}, strat Strategy, rng Rand) (models.Token, bool) {
	eligible := s.Eligible(candidates, exclude)
	if len(eligible) == 0 {
		return models.Token{}, false
	}

	type scored struct {
		token models.Token
		score float64
	}
	ranked := make([]scored, len(eligible))
	for i, token := range eligible {
		ranked[i] = scored{token: token, score: strat.Score(token, rng)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	return ranked[0].token, true
}
