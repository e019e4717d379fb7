package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer answers every request with status/body and remembers the last query.
func stubServer(t *testing.T, status int, body string) (*httptest.Server, func() url.Values) {
	t.Helper()
	var (
		mu   sync.Mutex
		last url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.URL.Query()
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() url.Values {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newAlphaVantageServer(t *testing.T, status int, body string) (*AlphaVantageAdapter, func() url.Values) {
	t.Helper()
	srv, query := stubServer(t, status, body)
	av, err := NewAlphaVantageAdapter(AlphaVantageConfig{APIKey: "demo-key", BaseURL: srv.URL, TimeoutSeconds: 5})
	require.NoError(t, err)
	return av, query
}

func TestAlphaVantageGlobalQuote(t *testing.T) {
	av, query := newAlphaVantageServer(t, http.StatusOK, `{
		"Global Quote": {
			"01. symbol": "AAPL",
			"05. price": "198.0000",
			"07. latest trading day": "2025-06-06"
		}
	}`)

	q, err := av.Fetch(context.Background(), "aapl", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, Quote{Symbol: "AAPL", Date: "2025-06-06", Close: 198.0, Provider: "alphavantage"}, q)

	assert.Equal(t, "GLOBAL_QUOTE", query().Get("function"))
	assert.Equal(t, "AAPL", query().Get("symbol"))
	assert.Equal(t, "demo-key", query().Get("apikey"))
}

func TestAlphaVantageCryptoExchangeRate(t *testing.T) {
	av, query := newAlphaVantageServer(t, http.StatusOK, `{
		"Realtime Currency Exchange Rate": {
			"1. From_Currency Code": "BTC",
			"5. Exchange Rate": "105432.12000000",
			"6. Last Refreshed": "2025-06-08 14:02:01"
		}
	}`)

	q, err := av.Fetch(context.Background(), "BTC", ClassCrypto)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-08", q.Date)
	assert.InDelta(t, 105432.12, q.Close, 1e-9)
	assert.False(t, q.DateFallback)

	assert.Equal(t, "CURRENCY_EXCHANGE_RATE", query().Get("function"))
	assert.Equal(t, "BTC", query().Get("from_currency"))
	assert.Equal(t, "USD", query().Get("to_currency"))
}

func TestAlphaVantageNegativeResults(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType string
	}{
		{"rate limit note", http.StatusOK, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, ErrTypeRateLimit},
		{"information notice", http.StatusOK, `{"Information": "daily rate limit reached"}`, ErrTypeRateLimit},
		{"bad symbol", http.StatusOK, `{"Error Message": "Invalid API call."}`, ErrTypeBadSymbol},
		{"empty quote", http.StatusOK, `{"Global Quote": {}}`, ErrTypeUnavailable},
		{"bad price", http.StatusOK, `{"Global Quote": {"05. price": "n/a", "07. latest trading day": "2025-06-06"}}`, ErrTypeMalformed},
		{"not json", http.StatusOK, `<html>`, ErrTypeMalformed},
		{"server error", http.StatusServiceUnavailable, `oops`, ErrTypeHTTPStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av, _ := newAlphaVantageServer(t, tt.status, tt.body)
			_, err := av.Fetch(context.Background(), "AAPL", ClassEquity)
			var qe *QuoteError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, tt.wantType, qe.Type)
			assert.Equal(t, "alphavantage", qe.Provider)
		})
	}
}

func TestAlphaVantageDateFallback(t *testing.T) {
	restore := Clock
	Clock = func() time.Time { return time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { Clock = restore })

	av, _ := newAlphaVantageServer(t, http.StatusOK, `{"Global Quote": {"05. price": "198.00", "07. latest trading day": "last friday"}}`)
	q, err := av.Fetch(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-06", q.Date)
	assert.True(t, q.DateFallback)
}

func TestAlphaVantageNetworkErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	av, err := NewAlphaVantageAdapter(AlphaVantageConfig{APIKey: "secret-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = av.Fetch(context.Background(), "AAPL", ClassEquity)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestAlphaVantageRequiresKey(t *testing.T) {
	_, err := NewAlphaVantageAdapter(AlphaVantageConfig{})
	assert.Error(t, err)
}
