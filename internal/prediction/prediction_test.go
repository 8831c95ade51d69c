package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/callbattle/internal/ai"
	"github.com/songzhibin97/callbattle/internal/data/storage"
	"github.com/songzhibin97/callbattle/internal/models"
	"github.com/songzhibin97/callbattle/internal/strategy"
)

type fakePrices struct {
	mu      sync.Mutex
	prices  map[string]float64
	queries [][]string
}

func (f *fakePrices) GetReferencePrices(ctx context.Context, symbols []string) map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, symbols)
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out
}

// scriptedRand replays fixed draws in order.
type scriptedRand struct {
	floats []float64
	ints   []int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	f := r.floats[0]
	r.floats = r.floats[1:]
	return f
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	i := r.ints[0]
	r.ints = r.ints[1:]
	return i % n
}

type stanceNarrator struct{ err error }

func (s stanceNarrator) ExplainCall(ctx context.Context, req *ai.CallNarration) (string, error) {
	return "", errors.New("unused")
}

func (s stanceNarrator) ExplainStance(ctx context.Context, req *ai.StanceNarration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return string(req.Agent) + " says " + string(req.Position), nil
}

var referencePrices = map[string]float64{"BTC": 95000, "ETH": 3500, "SOL": 180}

func TestGenerator_ScriptedDraws(t *testing.T) {
	tests := []struct {
		name          string
		floats        []float64
		ints          []int
		wantQuestion  string
		wantOpus      models.Position
		wantOpusConf  int
		wantCodex     models.Position
		wantCodexConf int
	}{
		{
			name: "contrarian flip",
			// variance, sign, direction, opus noise, codex noise, contrarian
			floats:       []float64{0, 0.9, 0.1, 1.0, 0.5, 0.1},
			ints:         []int{0, 10},
			wantQuestion: "Will BTC be below $96,000 by 23:59 UTC today?",
			wantOpus:     models.PositionYes, wantOpusConf: 90,
			wantCodex: models.PositionNo, wantCodexConf: 60,
		},
		{
			name:         "agreement kept",
			floats:       []float64{0, 0.9, 0.1, 1.0, 0.5, 0.9},
			ints:         []int{0},
			wantQuestion: "Will BTC be below $96,000 by 23:59 UTC today?",
			wantOpus:     models.PositionYes, wantOpusConf: 90,
			wantCodex: models.PositionYes, wantCodexConf: 65,
		},
		{
			name:         "premise fails so bias is NO",
			floats:       []float64{0, 0.9, 0.9, 0, 0.1, 0.9},
			ints:         []int{0},
			wantQuestion: "Will BTC be above $96,000 by 23:59 UTC today?",
			wantOpus:     models.PositionNo, wantOpusConf: 90,
			wantCodex: models.PositionNo, wantCodexConf: 85,
		},
		{
			name: "far target narrows the band",
			// +4% on SOL/5: 187.2 rounds to 185, distance 2.8% uses the 0.3 band
			floats:       []float64{1, 0.9, 0.9, 1.0, 0, 0.9},
			ints:         []int{5},
			wantQuestion: "Will SOL be above $185 by 23:59 UTC today?",
			wantOpus:     models.PositionNo, wantOpusConf: 50,
			wantCodex: models.PositionNo, wantCodexConf: 80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			g := NewGenerator(&fakePrices{prices: referencePrices}, store,
				&scriptedRand{floats: tt.floats, ints: tt.ints}, nil)

			p, err := g.Generate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuestion, p.Question)
			assert.Equal(t, tt.wantOpus, p.OpusPosition)
			assert.Equal(t, tt.wantOpusConf, p.OpusConfidence)
			assert.Equal(t, tt.wantCodex, p.CodexPosition)
			assert.Equal(t, tt.wantCodexConf, p.CodexConfidence)
			assert.Equal(t, CategoryCrypto, p.Category)
			assert.NotEmpty(t, p.OpusReasoning)
			assert.NotEmpty(t, p.CodexReasoning)
			assert.False(t, p.Resolved)

			stored, err := store.ListPredictions(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, stored, 1)
			assert.Equal(t, p.ID, stored[0].ID)
		})
	}
}

func TestGenerator_RandomizedInvariants(t *testing.T) {
	store := storage.NewMemoryStorage()
	g := NewGenerator(&fakePrices{prices: referencePrices}, store, strategy.NewRand(99), nil)
	increments := map[string][]float64{"BTC": {1000, 500}, "ETH": {100, 50}, "SOL": {10, 5}}

	for i := 0; i < 300; i++ {
		p, err := g.Generate(context.Background())
		require.NoError(t, err)

		current := referencePrices[p.Asset]
		assert.Equal(t, current, p.CurrentPrice)
		assert.Contains(t, []string{DirectionAbove, DirectionBelow}, p.Direction)

		multiple := false
		for _, inc := range increments[p.Asset] {
			if q := p.TargetPrice / inc; q == float64(int64(q)) {
				multiple = true
			}
		}
		assert.True(t, multiple, "target %v not on a template increment", p.TargetPrice)
		assert.InDelta(t, current, p.TargetPrice, current*0.04+increments[p.Asset][0]/2)

		terms, ok := ParseQuestion(p.Question)
		require.True(t, ok, p.Question)
		assert.Equal(t, Terms{Asset: p.Asset, Direction: p.Direction, Target: p.TargetPrice}, terms)

		for _, c := range []int{p.OpusConfidence, p.CodexConfidence} {
			assert.GreaterOrEqual(t, c, 50)
			assert.LessOrEqual(t, c, 95)
		}
	}
}

func TestGenerator_MissingPrice(t *testing.T) {
	g := NewGenerator(&fakePrices{prices: map[string]float64{}}, storage.NewMemoryStorage(), &scriptedRand{}, nil)
	_, err := g.Generate(context.Background())
	assert.ErrorContains(t, err, "no reference price for BTC")
}

func TestGenerator_Narrator(t *testing.T) {
	g := NewGenerator(&fakePrices{prices: referencePrices}, storage.NewMemoryStorage(),
		&scriptedRand{floats: []float64{0, 0.9, 0.1, 1.0, 0.5, 0.9}}, nil)
	g.SetNarrator(stanceNarrator{}, time.Second)

	p, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opus says YES", p.OpusReasoning)
	assert.Equal(t, "codex says YES", p.CodexReasoning)

	g = NewGenerator(&fakePrices{prices: referencePrices}, storage.NewMemoryStorage(), strategy.NewRand(1), nil)
	g.SetNarrator(stanceNarrator{err: errors.New("timeout")}, time.Second)
	p, err = g.Generate(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, p.OpusReasoning, "says")
}

func TestFormatPrice(t *testing.T) {
	tests := map[float64]string{
		70000:       "70,000",
		3512.5:      "3,512.50",
		180:         "180",
		1234567.891: "1,234,567.89",
		999:         "999",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatPrice(in))
	}
}

func TestRoundToIncrement(t *testing.T) {
	assert.Equal(t, 96000.0, roundToIncrement(95950, 1000))
	assert.Equal(t, 3450.0, roundToIncrement(3437.5, 50))
	assert.Equal(t, 5.0, roundToIncrement(1.2, 5), "never rounds to zero")
}
