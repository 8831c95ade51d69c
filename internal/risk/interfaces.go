package risk

import (
	"context"
	"time"

	"github.com/songzhibin97/callbattle/internal/models"
)

// RiskManager decides which candidate tokens an agent may call
type RiskManager interface {
	// CheckTokenRisk evaluates whether a candidate is tradable enough to call
	CheckTokenRisk(token models.Token) *RiskAssessment

	// SetRiskParameters sets risk management parameters
	SetRiskParameters(ctx context.Context, params *RiskParameters) error

	// RecencyWindow is how long a called address stays excluded in the active round
	RecencyWindow() time.Duration
}

// RiskParameters 风险参数配置
type RiskParameters struct {
	MinMarketCap  float64       `json:"min_market_cap" mapstructure:"min_market_cap"` // 低于等于该市值视为不可追踪
	RecencyWindow time.Duration `json:"recency_window" mapstructure:"recency_window"` // 重复喊单冷却时间
}

// DefaultRiskParameters mirrors the battle defaults: 10k market cap floor, 5 minute cooldown.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MinMarketCap:  10000,
		RecencyWindow: 5 * time.Minute,
	}
}

// RiskAssessment 风险评估结果
type RiskAssessment struct {
	IsAcceptable bool     `json:"is_acceptable"`
	RiskFactors  []string `json:"risk_factors"`
}
