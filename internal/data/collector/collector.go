package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/songzhibin97/callbattle/internal/models"
)

// DefaultBatchSize matches the provider limit on comma-joined address lookups.
const DefaultBatchSize = 30

// FallbackPrices are used when every reference source misses a symbol.
var FallbackPrices = map[string]float64{
	"BTC": 95000,
	"ETH": 3500,
	"SOL": 180,
}

// MarketSource supplies trending tokens and valuations for one provider.
type MarketSource interface {
	Name() string
	TrendingTokens(ctx context.Context) ([]models.Token, error)
	Valuations(ctx context.Context, addresses []string) (map[string]models.Valuation, error)
}

// PriceSource supplies reference prices for major assets.
type PriceSource interface {
	Name() string
	ReferencePrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// MultiSourceCollector implements the data provider interfaces by trying each source in order.
type MultiSourceCollector struct {
	marketSources []MarketSource
	priceSources  []PriceSource
	fallback      map[string]float64
	batchSize     int
	logger        *zap.Logger
}

func NewMultiSourceCollector(marketSources []MarketSource, priceSources []PriceSource, batchSize int, logger *zap.Logger) *MultiSourceCollector {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiSourceCollector{
		marketSources: marketSources,
		priceSources:  priceSources,
		fallback:      FallbackPrices,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// ListCandidateTokens implements data.MarketDataProvider
func (c *MultiSourceCollector) ListCandidateTokens(ctx context.Context) []models.Token {
	for _, source := range c.marketSources {
		tokens, err := source.TrendingTokens(ctx)
		if err != nil {
			c.logger.Error("failed to collect trending tokens", zap.String("source", source.Name()), zap.Error(err))
			continue
		}
		if len(tokens) == 0 {
			c.logger.Info("source returned no trending tokens", zap.String("source", source.Name()))
			continue
		}

		seen := make(map[string]struct{}, len(tokens))
		out := make([]models.Token, 0, len(tokens))
		for _, token := range tokens {
			if token.Address == "" {
				continue
			}
			if _, ok := seen[token.Address]; ok {
				continue
			}
			seen[token.Address] = struct{}{}
			out = append(out, token)
		}
		c.logger.Info("collected trending tokens", zap.String("source", source.Name()), zap.Int("count", len(out)))
		return out
	}

	return []models.Token{}
}

// GetValuation implements data.MarketDataProvider
func (c *MultiSourceCollector) GetValuation(ctx context.Context, address string) (*models.Valuation, bool) {
	vals := c.GetValuationsBatch(ctx, []string{address})
	v, ok := vals[address]
	if !ok {
		return nil, false
	}
	return &v, true
}

// GetValuationsBatch implements data.MarketDataProvider. Partial results are normal.
func (c *MultiSourceCollector) GetValuationsBatch(ctx context.Context, addresses []string) map[string]models.Valuation {
	unique := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		if address == "" {
			continue
		}
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		unique = append(unique, address)
	}

	results := make(map[string]models.Valuation, len(unique))
	for start := 0; start < len(unique); start += c.batchSize {
		end := start + c.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		c.fillChunk(ctx, unique[start:end], results)
	}
	return results
}

func (c *MultiSourceCollector) fillChunk(ctx context.Context, chunk []string, results map[string]models.Valuation) {
	pending := chunk
	for _, source := range c.marketSources {
		if len(pending) == 0 {
			return
		}
		vals, err := source.Valuations(ctx, pending)
		if err != nil {
			c.logger.Error("failed to collect valuations", zap.String("source", source.Name()), zap.Int("addresses", len(pending)), zap.Error(err))
			continue
		}

		missing := pending[:0:0]
		for _, address := range pending {
			if v, ok := vals[address]; ok && v.Valid() {
				results[address] = v
				continue
			}
			missing = append(missing, address)
		}
		pending = missing
	}
}

// GetReferencePrices implements data.ReferencePriceProvider
func (c *MultiSourceCollector) GetReferencePrices(ctx context.Context, symbols []string) map[string]float64 {
	results := make(map[string]float64, len(symbols))
	pending := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		pending = append(pending, strings.ToUpper(symbol))
	}

	for _, source := range c.priceSources {
		if len(pending) == 0 {
			break
		}
		prices, err := source.ReferencePrices(ctx, pending)
		if err != nil {
			c.logger.Error("failed to collect reference prices", zap.String("source", source.Name()), zap.Error(err))
			continue
		}

		missing := pending[:0:0]
		for _, symbol := range pending {
			if price, ok := prices[symbol]; ok && price > 0 {
				results[symbol] = price
				continue
			}
			missing = append(missing, symbol)
		}
		if len(missing) > 0 {
			c.logger.Info("reference prices incomplete, falling back", zap.String("source", source.Name()), zap.Strings("missing", missing))
		}
		pending = missing
	}

	for _, symbol := range pending {
		if price, ok := c.fallback[symbol]; ok {
			c.logger.Warn("using fallback reference price", zap.String("symbol", symbol), zap.Float64("price", price))
			results[symbol] = price
		}
	}
	return results
}
