package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/songzhibin97/callbattle/internal/utils/request"

	"github.com/songzhibin97/callbattle/internal/models"
)

const defaultBaseURL = "https://api.dexscreener.com"

// MaxAddressesPerRequest is the provider's limit for comma-joined token lookups.
const MaxAddressesPerRequest = 30

type DexScreenerDataSource struct {
	baseURL    string
	chain      string
	httpClient *resty.Client
}

// NewDexScreenerDataSource creates a source restricted to chain (empty = any chain).
func NewDexScreenerDataSource(baseURL, chain string) *DexScreenerDataSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &DexScreenerDataSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chain:      strings.ToLower(strings.TrimSpace(chain)),
		httpClient: request.Request,
	}
}

func (d *DexScreenerDataSource) Name() string {
	return "dexscreener"
}

type boostEntry struct {
	ChainID      string  `json:"chainId"`
	TokenAddress string  `json:"tokenAddress"`
	TotalAmount  float64 `json:"totalAmount"`
}

type tokenPairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd string `json:"priceUsd"`
	Txns     struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Fdv       float64 `json:"fdv"`
	MarketCap float64 `json:"marketCap"`
}

// TrendingTokens resolves the top boosted tokens into normalized candidates.
func (d *DexScreenerDataSource) TrendingTokens(ctx context.Context) ([]models.Token, error) {
	url := fmt.Sprintf("%s/token-boosts/top/v1", d.baseURL)

	resp, err := d.httpClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var boosts []boostEntry
	if err := json.Unmarshal(resp.Body(), &boosts); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	seen := make(map[string]struct{})
	addresses := make([]string, 0, len(boosts))
	for _, b := range boosts {
		if b.TokenAddress == "" || !d.chainAllowed(b.ChainID) {
			continue
		}
		if _, ok := seen[b.TokenAddress]; ok {
			continue
		}
		seen[b.TokenAddress] = struct{}{}
		addresses = append(addresses, b.TokenAddress)
		if len(addresses) == MaxAddressesPerRequest {
			break
		}
	}

	if len(addresses) == 0 {
		return []models.Token{}, nil
	}

	pairs, err := d.fetchPairs(ctx, addresses)
	if err != nil {
		return nil, err
	}

	return normalizePairs(pairs, d.chain), nil
}

// Valuations looks up at most MaxAddressesPerRequest addresses.
func (d *DexScreenerDataSource) Valuations(ctx context.Context, addresses []string) (map[string]models.Valuation, error) {
	if len(addresses) > MaxAddressesPerRequest {
		return nil, fmt.Errorf("too many addresses: %d > %d", len(addresses), MaxAddressesPerRequest)
	}
	if len(addresses) == 0 {
		return map[string]models.Valuation{}, nil
	}

	pairs, err := d.fetchPairs(ctx, addresses)
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.Valuation, len(addresses))
	for _, token := range normalizePairs(pairs, d.chain) {
		out[token.Address] = models.Valuation{
			PriceUSD:     token.PriceUSD,
			MarketCapUSD: token.MarketCapUSD,
		}
	}
	return out, nil
}

func (d *DexScreenerDataSource) fetchPairs(ctx context.Context, addresses []string) ([]pair, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, strings.Join(addresses, ","))

	resp, err := d.httpClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var result tokenPairsResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Pairs, nil
}

func (d *DexScreenerDataSource) chainAllowed(chainID string) bool {
	return d.chain == "" || strings.EqualFold(chainID, d.chain)
}

// normalizePairs keeps the most liquid pair per base token and maps it onto models.Token.
func normalizePairs(pairs []pair, chain string) []models.Token {
	type best struct {
		token     models.Token
		liquidity float64
	}

	order := make([]string, 0, len(pairs))
	byAddress := make(map[string]best)
	for _, p := range pairs {
		if p.BaseToken.Address == "" {
			continue
		}
		if chain != "" && !strings.EqualFold(p.ChainID, chain) {
			continue
		}
		price, err := strconv.ParseFloat(p.PriceUsd, 64)
		if err != nil {
			price = 0
		}
		marketCap := p.MarketCap
		if marketCap <= 0 {
			marketCap = p.Fdv
		}
		liquidity := 0.0
		if p.Liquidity != nil {
			liquidity = p.Liquidity.USD
		}

		current, exists := byAddress[p.BaseToken.Address]
		if exists && current.liquidity >= liquidity {
			continue
		}
		if !exists {
			order = append(order, p.BaseToken.Address)
		}
		byAddress[p.BaseToken.Address] = best{
			token: models.Token{
				Address:           p.BaseToken.Address,
				Symbol:            p.BaseToken.Symbol,
				Name:              p.BaseToken.Name,
				Chain:             p.ChainID,
				PriceUSD:          price,
				MarketCapUSD:      marketCap,
				Volume24hUSD:      p.Volume.H24,
				PriceChange24hPct: p.PriceChange.H24,
				TxnCount24h:       p.Txns.H24.Buys + p.Txns.H24.Sells,
			},
			liquidity: liquidity,
		}
	}

	tokens := make([]models.Token, 0, len(order))
	for _, address := range order {
		tokens = append(tokens, byAddress[address].token)
	}
	return tokens
}
