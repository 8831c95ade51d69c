package models

import "time"

// Agent 参赛代理
type Agent string

const (
	AgentOpus  Agent = "opus"
	AgentCodex Agent = "codex"
)

// Agents lists both competitors in selection order.
var Agents = []Agent{AgentOpus, AgentCodex}

// StartingBalance 模拟初始资金
const StartingBalance = 1000.0

// Token 候选代币快照
type Token struct {
	Address           string  `json:"address"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Chain             string  `json:"chain"`
	PriceUSD          float64 `json:"price_usd"`
	MarketCapUSD      float64 `json:"market_cap_usd"`
	Volume24hUSD      float64 `json:"volume_24h_usd"`
	PriceChange24hPct float64 `json:"price_change_24h_pct"`
	TxnCount24h       int64   `json:"txn_count_24h"`
}

// Valuation 当前估值
type Valuation struct {
	PriceUSD     float64 `json:"price_usd"`
	MarketCapUSD float64 `json:"market_cap_usd"`
}

// Valid reports whether the lookup produced a usable valuation.
func (v Valuation) Valid() bool {
	return v.MarketCapUSD > 0
}

type RoundStatus string

const (
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
)

// Round 对战轮次
type Round struct {
	ID          string      `json:"id"`
	Status      RoundStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	EndsAt      *time.Time  `json:"ends_at,omitempty"` // 旧版限时轮次
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Winner      *string     `json:"winner,omitempty"`
}

// Call 代理的一次喊单
type Call struct {
	ID                string    `json:"id"`
	RoundID           string    `json:"round_id"`
	Agent             Agent     `json:"agent"`
	TokenAddress      string    `json:"token_address"`
	TokenSymbol       string    `json:"token_symbol"`
	TokenName         string    `json:"token_name"`
	Chain             string    `json:"chain"`
	EntryPrice        float64   `json:"entry_price"`
	CurrentPrice      float64   `json:"current_price"`
	EntryMarketCap    float64   `json:"entry_market_cap"`
	CurrentMarketCap  float64   `json:"current_market_cap"`
	AthMarketCap      float64   `json:"ath_market_cap"`
	CurrentMultiplier float64   `json:"current_multiplier"`
	AthMultiplier     float64   `json:"ath_multiplier"`
	Reasoning         string    `json:"reasoning"`
	Confidence        int       `json:"confidence"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func ratio(value, entry float64) float64 {
	if entry == 0 {
		return 1
	}
	return value / entry
}

// Multiplier is the current valuation over the entry valuation.
func (c Call) Multiplier() float64 {
	return ratio(c.CurrentMarketCap, c.EntryMarketCap)
}

// PeakMultiplier is the all-time-high valuation over the entry valuation.
func (c Call) PeakMultiplier() float64 {
	return ratio(c.AthMarketCap, c.EntryMarketCap)
}

// RefreshMultipliers recomputes the cached multiplier columns.
func (c *Call) RefreshMultipliers() {
	c.CurrentMultiplier = c.Multiplier()
	c.AthMultiplier = c.PeakMultiplier()
}

type RoundAction string

const (
	ActionBuybackBurn RoundAction = "buyback_burn"
	ActionAirdrop     RoundAction = "airdrop"
	ActionNone        RoundAction = "none"
)

// WinnerDraw marks a tied round result.
const WinnerDraw = "draw"

// RoundResult 结算结果
type RoundResult struct {
	ID           string      `json:"id"`
	Winner       string      `json:"winner"`
	OpusBalance  float64     `json:"opus_balance"`
	CodexBalance float64     `json:"codex_balance"`
	Action       RoundAction `json:"action"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Position string

const (
	PositionYes Position = "YES"
	PositionNo  Position = "NO"
)

// Prediction 可验证的市场预测
type Prediction struct {
	ID              string     `json:"id"`
	Question        string     `json:"question"`
	Category        string     `json:"category"`
	Asset           string     `json:"asset,omitempty"`
	Direction       string     `json:"direction,omitempty"`
	TargetPrice     float64    `json:"target_price,omitempty"`
	CurrentPrice    float64    `json:"current_price,omitempty"`
	OpusPosition    Position   `json:"opus_position"`
	OpusConfidence  int        `json:"opus_confidence"`
	OpusReasoning   string     `json:"opus_reasoning"`
	CodexPosition   Position   `json:"codex_position"`
	CodexConfidence int        `json:"codex_confidence"`
	CodexReasoning  string     `json:"codex_reasoning"`
	Resolved        bool       `json:"resolved"`
	Result          *Position  `json:"result,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// AgentStats 派生统计，不落库
type AgentStats struct {
	Agent            Agent   `json:"agent"`
	TotalCalls       int     `json:"total_calls"`
	AvgMultiplier    float64 `json:"avg_multiplier"`
	MedianMultiplier float64 `json:"median_multiplier"`
	BestMultiplier   float64 `json:"best_multiplier"`
	Balance          float64 `json:"balance"`
	PnL              float64 `json:"pnl"`
	PnLPercent       float64 `json:"pnl_percent"`
	Score            float64 `json:"score"`
}

// AgentAggregate is the store-side summary over all historical calls.
type AgentAggregate struct {
	Agent          Agent   `json:"agent"`
	Calls          int     `json:"calls"`
	AvgMultiplier  float64 `json:"avg_multiplier"`
	BestMultiplier float64 `json:"best_multiplier"`
}
