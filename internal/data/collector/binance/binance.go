package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
)

const quoteAsset = "USDT"

// BinancePriceSource reads spot ticker prices as the alternate reference source.
type BinancePriceSource struct {
	client *binance.Client
}

// NewBinancePriceSource creates a keyless client; baseURL overrides the API host when set.
func NewBinancePriceSource(baseURL string) *BinancePriceSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &BinancePriceSource{client: client}
}

func (b *BinancePriceSource) Name() string {
	return "binance"
}

// ReferencePrices returns last prices of <SYMBOL>USDT pairs.
func (b *BinancePriceSource) ReferencePrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	wanted := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		wanted[symbol+quoteAsset] = symbol
	}

	prices, err := b.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}

	out := make(map[string]float64, len(symbols))
	for _, p := range prices {
		symbol, ok := wanted[p.Symbol]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		out[symbol] = price
	}
	return out, nil
}
