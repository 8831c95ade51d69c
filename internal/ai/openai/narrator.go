package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/songzhibin97/callbattle/internal/ai"
)

// OpenAINarrator implements the Narrator interface using an OpenAI-compatible API
type OpenAINarrator struct {
	client *openai.Client
	model  string
}

// NewOpenAINarrator creates a narrator. baseURL may point at any compatible
// endpoint (DeepSeek, a local gateway); empty keeps the OpenAI default.
func NewOpenAINarrator(apiKey, baseURL, model string) *OpenAINarrator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAINarrator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// ExplainCall implements the Narrator interface
func (n *OpenAINarrator) ExplainCall(ctx context.Context, req *ai.CallNarration) (string, error) {
	t := req.Token
	prompt := fmt.Sprintf(`You are %s. You just called the token below.
Symbol: %s
Name: %s
Chain: %s
Price: %.10f USD
Market cap: %.0f USD
24h volume: %.0f USD
24h change: %.2f%%
24h transactions: %d
Your quick notes: %s

Explain the call in at most two sentences, in character.

Output JSON:
{
    "reasoning": string
}`,
		ai.Personas[req.Agent], t.Symbol, t.Name, t.Chain, t.PriceUSD, t.MarketCapUSD,
		t.Volume24hUSD, t.PriceChange24hPct, t.TxnCount24h, req.Fallback)

	reasoning, err := n.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to explain call: %w", err)
	}
	return reasoning, nil
}

// ExplainStance implements the Narrator interface
func (n *OpenAINarrator) ExplainStance(ctx context.Context, req *ai.StanceNarration) (string, error) {
	prompt := fmt.Sprintf(`You are %s. Answer the market question below.
Question: %s
Current price: %.2f USD
Your position: %s (confidence %d%%)

Justify the position in one sentence, in character.

Output JSON:
{
    "reasoning": string
}`, ai.Personas[req.Agent], req.Question, req.CurrentPrice, req.Position, req.Confidence)

	reasoning, err := n.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to explain stance: %w", err)
	}
	return reasoning, nil
}

func (n *OpenAINarrator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := n.createChatCompletion(ctx, prompt)
	if err != nil {
		return "", err
	}

	var out struct {
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFence(resp)), &out); err != nil {
		return "", fmt.Errorf("failed to parse narration: %w", err)
	}
	if strings.TrimSpace(out.Reasoning) == "" {
		return "", fmt.Errorf("empty narration")
	}
	return strings.TrimSpace(out.Reasoning), nil
}

// stripFence removes a ```json fence some models wrap around output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// createChatCompletion is a helper function to make chat completion calls
func (n *OpenAINarrator) createChatCompletion(ctx context.Context, prompt string) (string, error) {
	resp, err := n.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: n.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "你是一个加密货币喊单对战中的参赛代理。请始终以JSON格式返回结果。",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.8, // 解说需要一些变化
		},
	)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return resp.Choices[0].Message.Content, nil
}
