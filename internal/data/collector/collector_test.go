package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/callbattle/internal/models"
)

type fakeMarketSource struct {
	name     string
	tokens   []models.Token
	vals     map[string]models.Valuation
	err      error
	requests [][]string
}

func (f *fakeMarketSource) Name() string { return f.name }

func (f *fakeMarketSource) TrendingTokens(ctx context.Context) ([]models.Token, error) {
	return f.tokens, f.err
}

func (f *fakeMarketSource) Valuations(ctx context.Context, addresses []string) (map[string]models.Valuation, error) {
	f.requests = append(f.requests, append([]string(nil), addresses...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]models.Valuation{}
	for _, a := range addresses {
		if v, ok := f.vals[a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

type fakePriceSource struct {
	name   string
	prices map[string]float64
	err    error
}

func (f *fakePriceSource) Name() string { return f.name }

func (f *fakePriceSource) ReferencePrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]float64{}
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func TestMultiSourceCollector_ListCandidateTokens(t *testing.T) {
	failing := &fakeMarketSource{name: "down", err: errors.New("boom")}
	empty := &fakeMarketSource{name: "empty"}
	good := &fakeMarketSource{name: "good", tokens: []models.Token{
		{Address: "A", Symbol: "A"},
		{Address: "A", Symbol: "dup"},
		{Address: "", Symbol: "blank"},
		{Address: "B", Symbol: "B"},
	}}

	c := NewMultiSourceCollector([]MarketSource{failing, empty, good}, nil, 0, nil)
	tokens := c.ListCandidateTokens(context.Background())
	require.Len(t, tokens, 2)
	assert.Equal(t, "A", tokens[0].Symbol)
	assert.Equal(t, "B", tokens[1].Address)

	none := NewMultiSourceCollector([]MarketSource{failing}, nil, 0, nil)
	assert.NotNil(t, none.ListCandidateTokens(context.Background()))
	assert.Empty(t, none.ListCandidateTokens(context.Background()))
}

func TestMultiSourceCollector_GetValuationsBatch(t *testing.T) {
	addresses := make([]string, 0, 65)
	vals := map[string]models.Valuation{}
	for i := 0; i < 65; i++ {
		a := fmt.Sprintf("addr-%d", i)
		addresses = append(addresses, a)
		if i != 7 {
			vals[a] = models.Valuation{PriceUSD: 1, MarketCapUSD: float64(100000 + i)}
		}
	}
	primary := &fakeMarketSource{name: "primary", vals: vals}
	secondary := &fakeMarketSource{name: "secondary", vals: map[string]models.Valuation{
		"addr-7": {PriceUSD: 2, MarketCapUSD: 777},
	}}

	c := NewMultiSourceCollector([]MarketSource{primary, secondary}, nil, 0, nil)
	out := c.GetValuationsBatch(context.Background(), append(addresses, "addr-1"))

	assert.Len(t, out, 65)
	assert.Equal(t, 777.0, out["addr-7"].MarketCapUSD)
	require.Len(t, primary.requests, 3)
	assert.Len(t, primary.requests[0], 30)
	assert.Len(t, primary.requests[1], 30)
	assert.Len(t, primary.requests[2], 5)
	require.Len(t, secondary.requests, 1)
	assert.Equal(t, []string{"addr-7"}, secondary.requests[0])
}

func TestMultiSourceCollector_GetValuation(t *testing.T) {
	src := &fakeMarketSource{name: "s", vals: map[string]models.Valuation{
		"A": {PriceUSD: 1, MarketCapUSD: 50000},
		"Z": {PriceUSD: 0, MarketCapUSD: 0},
	}}
	c := NewMultiSourceCollector([]MarketSource{src}, nil, 10, nil)

	v, ok := c.GetValuation(context.Background(), "A")
	require.True(t, ok)
	assert.Equal(t, 50000.0, v.MarketCapUSD)

	_, ok = c.GetValuation(context.Background(), "Z")
	assert.False(t, ok, "zero valuations are failed lookups")

	_, ok = c.GetValuation(context.Background(), "missing")
	assert.False(t, ok)
}

func TestMultiSourceCollector_GetReferencePrices(t *testing.T) {
	tests := []struct {
		name     string
		sources  []PriceSource
		expected map[string]float64
	}{
		{
			name: "primary complete",
			sources: []PriceSource{
				&fakePriceSource{name: "p", prices: map[string]float64{"BTC": 1, "ETH": 2, "SOL": 3}},
			},
			expected: map[string]float64{"BTC": 1, "ETH": 2, "SOL": 3},
		},
		{
			name: "alternate fills omitted field",
			sources: []PriceSource{
				&fakePriceSource{name: "p", prices: map[string]float64{"BTC": 1}},
				&fakePriceSource{name: "alt", prices: map[string]float64{"BTC": 9, "ETH": 20, "SOL": 30}},
			},
			expected: map[string]float64{"BTC": 1, "ETH": 20, "SOL": 30},
		},
		{
			name: "both fail uses constants",
			sources: []PriceSource{
				&fakePriceSource{name: "p", err: errors.New("down")},
				&fakePriceSource{name: "alt", prices: map[string]float64{"SOL": 0}},
			},
			expected: map[string]float64{"BTC": 95000, "ETH": 3500, "SOL": 180},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMultiSourceCollector(nil, tt.sources, 0, nil)
			assert.Equal(t, tt.expected, c.GetReferencePrices(context.Background(), []string{"btc", "ETH", "SOL"}))
		})
	}
}
