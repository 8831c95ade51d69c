package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/songzhibin97/callbattle/internal/utils/request"
)

const defaultBaseURL = "https://api.coingecko.com"

// coinIDs maps reference symbols onto CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

type CoinGeckoDataSource struct {
	baseURL    string
	httpClient *resty.Client
}

func NewCoinGeckoDataSource(baseURL string) *CoinGeckoDataSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &CoinGeckoDataSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: request.Request,
	}
}

func (c *CoinGeckoDataSource) Name() string {
	return "coingecko"
}

// simplePriceResponse is keyed by coin id; the usd field may be omitted.
type simplePriceResponse map[string]struct {
	USD *float64 `json:"usd"`
}

// ReferencePrices returns USD prices for the symbols CoinGecko reported.
func (c *CoinGeckoDataSource) ReferencePrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if id, ok := coinIDs[strings.ToUpper(symbol)]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetQueryParam("vs_currencies", "usd").
		Get(fmt.Sprintf("%s/api/v3/simple/price", c.baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var result simplePriceResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return normalizeSimplePrice(result, symbols), nil
}

func normalizeSimplePrice(result simplePriceResponse, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		entry, ok := result[coinIDs[symbol]]
		if !ok || entry.USD == nil || *entry.USD <= 0 {
			continue
		}
		out[symbol] = *entry.USD
	}
	return out
}
