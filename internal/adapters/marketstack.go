package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MarketstackAdapter reads end-of-day closes from /eod/latest. It is the only
// provider in the default configuration that carries the ^SPX index.
type MarketstackAdapter struct {
	httpProvider
}

type MarketstackConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
}

func NewMarketstackAdapter(config MarketstackConfig) (*MarketstackAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Marketstack API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://api.marketstack.com/v1"
	}
	return &MarketstackAdapter{
		httpProvider: newHTTPProvider("marketstack", strings.TrimRight(config.BaseURL, "/"), config.APIKey, time.Duration(config.TimeoutSeconds)*time.Second),
	}, nil
}

func (m *MarketstackAdapter) Name() string { return m.name }

func (m *MarketstackAdapter) Fetch(ctx context.Context, symbol string, _ AssetClass) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, NewBadSymbolError(m.name, symbol, "empty symbol")
	}

	body, err := m.get(ctx, symbol, m.baseURL+"/eod/latest", url.Values{
		"access_key": {m.apiKey},
		"symbols":    {symbol},
	})
	if err != nil {
		return Quote{}, err
	}

	var response struct {
		Data []struct {
			Close  *float64 `json:"close"`
			Date   string   `json:"date"`
			Symbol string   `json:"symbol"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Quote{}, NewMalformedError(m.name, symbol, fmt.Sprintf("decode response: %v", err))
	}
	if response.Error != nil {
		if strings.Contains(response.Error.Code, "limit") {
			return Quote{}, NewRateLimitError(m.name, symbol, response.Error.Message)
		}
		return Quote{}, NewBadSymbolError(m.name, symbol, response.Error.Message)
	}
	if len(response.Data) == 0 || response.Data[0].Close == nil {
		return Quote{}, NewUnavailableError(m.name, symbol, "no data returned")
	}

	row := response.Data[0]
	date, fallback := tradeDate(m.name, symbol, row.Date)
	q, err := NewQuote(symbol, date, *row.Close, m.name)
	if err != nil {
		return Quote{}, err
	}
	q.DateFallback = fallback
	return q, nil
}
