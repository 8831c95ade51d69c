package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/songzhibin97/callbattle/internal/models"
)

type BasicRiskManager struct {
	params   RiskParameters
	paramsMu sync.RWMutex
}

func NewBasicRiskManager(initialParams RiskParameters) *BasicRiskManager {
	return &BasicRiskManager{
		params: initialParams,
	}
}

func (rm *BasicRiskManager) CheckTokenRisk(token models.Token) *RiskAssessment {
	rm.paramsMu.RLock()
	params := rm.params
	rm.paramsMu.RUnlock()

	assessment := &RiskAssessment{
		IsAcceptable: true,
		RiskFactors:  make([]string, 0),
	}

	if strings.TrimSpace(token.Address) == "" {
		assessment.IsAcceptable = false
		assessment.RiskFactors = append(assessment.RiskFactors, "Token has no address")
	}

	// 市值过低视为流动性不足
	if token.MarketCapUSD <= params.MinMarketCap {
		assessment.IsAcceptable = false
		assessment.RiskFactors = append(assessment.RiskFactors,
			fmt.Sprintf("Market cap %.0f at or below minimum %.0f", token.MarketCapUSD, params.MinMarketCap))
	}

	if token.PriceUSD <= 0 {
		assessment.IsAcceptable = false
		assessment.RiskFactors = append(assessment.RiskFactors, "Token has no usable price")
	}

	return assessment
}

func (rm *BasicRiskManager) SetRiskParameters(ctx context.Context, params *RiskParameters) error {
	if params.MinMarketCap < 0 || params.RecencyWindow <= 0 {
		return fmt.Errorf("invalid risk parameters: market cap floor must be non-negative and recency window positive")
	}

	rm.paramsMu.Lock()
	rm.params = *params
	rm.paramsMu.Unlock()

	return nil
}

func (rm *BasicRiskManager) RecencyWindow() time.Duration {
	rm.paramsMu.RLock()
	defer rm.paramsMu.RUnlock()
	return rm.params.RecencyWindow
}
