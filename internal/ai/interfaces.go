package ai

import (
	"context"

	"github.com/songzhibin97/callbattle/internal/models"
)

// Narrator rewrites an agent's reasoning in its own voice
type Narrator interface {
	// ExplainCall produces reasoning text for a token pick
	ExplainCall(ctx context.Context, req *CallNarration) (string, error)

	// ExplainStance produces reasoning text for a prediction position
	ExplainStance(ctx context.Context, req *StanceNarration) (string, error)
}

// CallNarration 喊单解说请求
type CallNarration struct {
	Agent    models.Agent `json:"agent"`
	Token    models.Token `json:"token"`
	Fallback string       `json:"fallback"` // 策略自带的理由
}

// StanceNarration 预测立场解说请求
type StanceNarration struct {
	Agent        models.Agent    `json:"agent"`
	Question     string          `json:"question"`
	CurrentPrice float64         `json:"current_price"`
	Position     models.Position `json:"position"`
	Confidence   int             `json:"confidence"`
}

// Personas describe each agent's voice for prompts.
var Personas = map[models.Agent]string{
	models.AgentOpus:  "a disciplined analyst who values liquidity, steady momentum and real on-chain activity",
	models.AgentCodex: "a degen momentum trader who hunts tiny caps and explosive charts",
}
