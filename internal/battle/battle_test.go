package battle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/songzhibin97/callbattle/internal/ai"
	"github.com/songzhibin97/callbattle/internal/data/storage"
	"github.com/songzhibin97/callbattle/internal/models"
)

type fakeMarket struct {
	mu         sync.Mutex
	tokens     []models.Token
	valuations map[string]models.Valuation
	batchCalls int
}

func (f *fakeMarket) ListCandidateTokens(ctx context.Context) []models.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Token(nil), f.tokens...)
}

func (f *fakeMarket) GetValuation(ctx context.Context, address string) (*models.Valuation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.valuations[address]
	return &v, ok
}

func (f *fakeMarket) GetValuationsBatch(ctx context.Context, addresses []string) map[string]models.Valuation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make(map[string]models.Valuation)
	for _, a := range addresses {
		if v, ok := f.valuations[a]; ok {
			out[a] = v
		}
	}
	return out
}

func (f *fakeMarket) setValuation(address string, v models.Valuation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.valuations == nil {
		f.valuations = make(map[string]models.Valuation)
	}
	f.valuations[address] = v
}

// flakyStore fails writes for selected calls.
type flakyStore struct {
	*storage.MemoryStorage
	failUpdate map[string]bool
	failCreate bool
}

func (s *flakyStore) UpdateCallValuation(ctx context.Context, c *models.Call) error {
	if s.failUpdate[c.ID] {
		return errors.New("write timeout")
	}
	return s.MemoryStorage.UpdateCallValuation(ctx, c)
}

func (s *flakyStore) CreateCall(ctx context.Context, c *models.Call) error {
	if s.failCreate {
		return errors.New("insert failed")
	}
	return s.MemoryStorage.CreateCall(ctx, c)
}

type fakePredictions struct {
	calls int
	err   error
}

func (f *fakePredictions) Generate(ctx context.Context) (*models.Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Prediction{ID: "p1", Question: "Will BTC be above $70,000 by 23:59 UTC today?"}, nil
}

type fakeNarrator struct {
	err error
}

func (f fakeNarrator) ExplainCall(ctx context.Context, req *ai.CallNarration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(req.Agent) + " likes " + req.Token.Symbol, nil
}

func (f fakeNarrator) ExplainStance(ctx context.Context, req *ai.StanceNarration) (string, error) {
	return "", f.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
}

func sampleTokens() []models.Token {
	return []models.Token{
		{Address: "big", Symbol: "BIG", Chain: "solana", PriceUSD: 1, MarketCapUSD: 2_000_000, Volume24hUSD: 2_000_000, PriceChange24hPct: 30, TxnCount24h: 8000},
		{Address: "tiny", Symbol: "TINY", Chain: "solana", PriceUSD: 0.001, MarketCapUSD: 300_000, Volume24hUSD: 150_000, PriceChange24hPct: 150, TxnCount24h: 400},
		{Address: "mid", Symbol: "MID", Chain: "solana", PriceUSD: 0.05, MarketCapUSD: 900_000, Volume24hUSD: 90_000, PriceChange24hPct: 10, TxnCount24h: 900},
		{Address: "dust", Symbol: "DUST", Chain: "solana", PriceUSD: 0.0001, MarketCapUSD: 9_000, Volume24hUSD: 9_000_000, PriceChange24hPct: 900},
	}
}
