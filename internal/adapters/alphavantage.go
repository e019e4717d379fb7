package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AlphaVantageAdapter reads GLOBAL_QUOTE for equities/indices and
// CURRENCY_EXCHANGE_RATE for crypto.
type AlphaVantageAdapter struct {
	httpProvider
	quoteCurrency string
}

// AlphaVantageConfig holds configuration for Alpha Vantage adapter
type AlphaVantageConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	QuoteCurrency  string // crypto quote currency, USD by default
}

// NewAlphaVantageAdapter creates a new Alpha Vantage adapter
func NewAlphaVantageAdapter(config AlphaVantageConfig) (*AlphaVantageAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Alpha Vantage API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://www.alphavantage.co/query"
	}
	if config.QuoteCurrency == "" {
		config.QuoteCurrency = "USD"
	}
	return &AlphaVantageAdapter{
		httpProvider:  newHTTPProvider("alphavantage", config.BaseURL, config.APIKey, time.Duration(config.TimeoutSeconds)*time.Second),
		quoteCurrency: config.QuoteCurrency,
	}, nil
}

func (av *AlphaVantageAdapter) Name() string { return av.name }

// Fetch implements Provider.
func (av *AlphaVantageAdapter) Fetch(ctx context.Context, symbol string, class AssetClass) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, NewBadSymbolError(av.name, symbol, "empty symbol")
	}
	if class == ClassCrypto {
		return av.fetchCrypto(ctx, symbol)
	}
	return av.fetchGlobalQuote(ctx, symbol)
}

// avEnvelope carries the error/notice fields common to every Alpha Vantage response.
type avEnvelope struct {
	ErrorMessage string `json:"Error Message"`
	Information  string `json:"Information"`
	Note         string `json:"Note"`
}

func (e avEnvelope) check(provider, symbol string) error {
	if e.ErrorMessage != "" {
		return NewBadSymbolError(provider, symbol, e.ErrorMessage)
	}
	// Note / Information are the free-tier call-frequency notices
	if e.Note != "" {
		return NewRateLimitError(provider, symbol, e.Note)
	}
	if e.Information != "" {
		return NewRateLimitError(provider, symbol, e.Information)
	}
	return nil
}

func (av *AlphaVantageAdapter) fetchGlobalQuote(ctx context.Context, symbol string) (Quote, error) {
	body, err := av.get(ctx, symbol, av.baseURL, url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {av.apiKey},
	})
	if err != nil {
		return Quote{}, err
	}

	var response struct {
		avEnvelope
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Quote{}, NewMalformedError(av.name, symbol, fmt.Sprintf("decode response: %v", err))
	}
	if err := response.check(av.name, symbol); err != nil {
		return Quote{}, err
	}
	if len(response.GlobalQuote) == 0 {
		return Quote{}, NewUnavailableError(av.name, symbol, "no quote data returned")
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(response.GlobalQuote["05. price"]), 64)
	if err != nil {
		return Quote{}, NewMalformedError(av.name, symbol, fmt.Sprintf("bad price %q", response.GlobalQuote["05. price"]))
	}
	date, fallback := tradeDate(av.name, symbol, response.GlobalQuote["07. latest trading day"])

	q, err := NewQuote(symbol, date, price, av.name)
	if err != nil {
		return Quote{}, err
	}
	q.DateFallback = fallback
	return q, nil
}

func (av *AlphaVantageAdapter) fetchCrypto(ctx context.Context, symbol string) (Quote, error) {
	body, err := av.get(ctx, symbol, av.baseURL, url.Values{
		"function":      {"CURRENCY_EXCHANGE_RATE"},
		"from_currency": {symbol},
		"to_currency":   {av.quoteCurrency},
		"apikey":        {av.apiKey},
	})
	if err != nil {
		return Quote{}, err
	}

	var response struct {
		avEnvelope
		Rate map[string]string `json:"Realtime Currency Exchange Rate"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Quote{}, NewMalformedError(av.name, symbol, fmt.Sprintf("decode response: %v", err))
	}
	if err := response.check(av.name, symbol); err != nil {
		return Quote{}, err
	}
	if len(response.Rate) == 0 {
		return Quote{}, NewUnavailableError(av.name, symbol, "no exchange rate returned")
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(response.Rate["5. Exchange Rate"]), 64)
	if err != nil {
		return Quote{}, NewMalformedError(av.name, symbol, fmt.Sprintf("bad rate %q", response.Rate["5. Exchange Rate"]))
	}
	date, fallback := tradeDate(av.name, symbol, response.Rate["6. Last Refreshed"])

	q, err := NewQuote(symbol, date, price, av.name)
	if err != nil {
		return Quote{}, err
	}
	q.DateFallback = fallback
	return q, nil
}
