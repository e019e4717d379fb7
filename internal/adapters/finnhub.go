package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FinnhubAdapter reads /quote. Crypto symbols are mapped onto an exchange pair.
type FinnhubAdapter struct {
	httpProvider
	cryptoPairs map[string]string
}

type FinnhubConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	CryptoPairs    map[string]string // BTC -> BINANCE:BTCUSDT
}

func NewFinnhubAdapter(config FinnhubConfig) (*FinnhubAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Finnhub API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://finnhub.io/api/v1"
	}
	if config.CryptoPairs == nil {
		config.CryptoPairs = map[string]string{"BTC": "BINANCE:BTCUSDT"}
	}
	return &FinnhubAdapter{
		httpProvider: newHTTPProvider("finnhub", strings.TrimRight(config.BaseURL, "/"), config.APIKey, time.Duration(config.TimeoutSeconds)*time.Second),
		cryptoPairs:  config.CryptoPairs,
	}, nil
}

func (f *FinnhubAdapter) Name() string { return f.name }

func (f *FinnhubAdapter) Fetch(ctx context.Context, symbol string, class AssetClass) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, NewBadSymbolError(f.name, symbol, "empty symbol")
	}
	remote := symbol
	if class == ClassCrypto {
		if pair, ok := f.cryptoPairs[symbol]; ok {
			remote = pair
		}
	}

	body, err := f.get(ctx, symbol, f.baseURL+"/quote", url.Values{
		"symbol": {remote},
		"token":  {f.apiKey},
	})
	if err != nil {
		return Quote{}, err
	}

	// c: current price, pc: previous close, t: unix seconds of the last trade
	var response struct {
		Current   *float64 `json:"c"`
		Timestamp *int64   `json:"t"`
		Error     string   `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Quote{}, NewMalformedError(f.name, symbol, fmt.Sprintf("decode response: %v", err))
	}
	if response.Error != "" {
		if strings.Contains(strings.ToLower(response.Error), "limit") {
			return Quote{}, NewRateLimitError(f.name, symbol, response.Error)
		}
		return Quote{}, NewBadSymbolError(f.name, symbol, response.Error)
	}
	// Finnhub answers unknown symbols with zeros instead of an error
	if response.Current == nil || *response.Current == 0 {
		return Quote{}, NewUnavailableError(f.name, symbol, "no usable quote")
	}

	raw := ""
	if response.Timestamp != nil && *response.Timestamp > 0 {
		raw = time.Unix(*response.Timestamp, 0).UTC().Format(DateLayout)
	}
	date, fallback := tradeDate(f.name, symbol, raw)

	q, err := NewQuote(symbol, date, *response.Current, f.name)
	if err != nil {
		return Quote{}, err
	}
	q.DateFallback = fallback
	return q, nil
}
