package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
	"github.com/Rajchodisetti/weekly-portfolio/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, Sleep: noSleep}
}

func newTestChain(t *testing.T, breakerFailures uint32, mocks ...*MockProvider) *Chain {
	t.Helper()
	providers := map[string]Provider{}
	order := []string{}
	for _, m := range mocks {
		providers[m.Name()] = m
		order = append(order, m.Name())
	}
	c, err := NewChain(providers, ChainConfig{
		Order:           map[AssetClass][]string{ClassEquity: order},
		Policy:          testPolicy(),
		BreakerFailures: breakerFailures,
	})
	require.NoError(t, err)
	return c
}

func TestChainFailoverStopsAtFirstSuccess(t *testing.T) {
	a, b, c := NewMockProvider("A"), NewMockProvider("B"), NewMockProvider("C")
	a.SetError("AAPL", NewUnavailableError("A", "AAPL", "no data"))
	b.SetQuote("AAPL", "2025-06-08", 198.0)
	c.SetQuote("AAPL", "2025-06-08", 1.0)

	chain := newTestChain(t, 3, a, b, c)
	q, attempts, err := chain.Fetch(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)

	assert.Equal(t, "B", q.Provider)
	assert.Equal(t, 198.0, q.Close)
	assert.Equal(t, 1, a.Calls(), "unavailable results are not retried")
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 0, c.Calls())
	assert.Equal(t, []Attempt{
		{Provider: "A", Outcome: OutcomeUnavailable, Reason: attempts[0].Reason},
		{Provider: "B", Outcome: OutcomeOK},
	}, attempts)
}

func TestChainRetriesTransientThenFailsOver(t *testing.T) {
	observ.ResetMetrics()
	a, b := NewMockProvider("A"), NewMockProvider("B")
	a.SetError("AAPL", NewHTTPStatusError("A", "AAPL", 503, "maintenance"))
	b.SetQuote("AAPL", "2025-06-08", 198.0)

	chain := newTestChain(t, 10, a, b)
	q, attempts, err := chain.Fetch(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)

	assert.Equal(t, "B", q.Provider)
	assert.Equal(t, 3, a.Calls(), "first call plus two retries")
	assert.Equal(t, OutcomeExhausted, attempts[0].Outcome)
	assert.Equal(t, 1.0, observ.CounterValue("provider_failovers_total", map[string]string{"class": "equity"}))
	assert.Equal(t, 2.0, observ.CounterValue("retry_attempts_total", map[string]string{"outcome": "retry"}))
}

func TestChainTransientRecovery(t *testing.T) {
	a, b := NewMockProvider("A"), NewMockProvider("B")
	a.Script("AAPL", MockResponse{Err: NewNetworkError("A", "AAPL", "timeout", errors.New("i/o timeout"))})
	a.SetQuote("AAPL", "2025-06-08", 198.0)

	chain := newTestChain(t, 3, a, b)
	q, attempts, err := chain.Fetch(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, "A", q.Provider)
	assert.Equal(t, 2, a.Calls())
	assert.Equal(t, 0, b.Calls())
	assert.Len(t, attempts, 1)
}

func TestChainPermanentErrorNotRetried(t *testing.T) {
	a, b := NewMockProvider("A"), NewMockProvider("B")
	a.SetError("AAPL", NewHTTPStatusError("A", "AAPL", 403, "forbidden"))
	b.SetQuote("AAPL", "2025-06-08", 198.0)

	chain := newTestChain(t, 3, a, b)
	_, attempts, err := chain.Fetch(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, OutcomePermanent, attempts[0].Outcome)
}

func TestChainExhausted(t *testing.T) {
	a, b := NewMockProvider("A"), NewMockProvider("B")
	b.SetError("XYZ", NewBadSymbolError("B", "XYZ", "unknown"))

	chain := newTestChain(t, 3, a, b)
	_, attempts, err := chain.Fetch(context.Background(), "XYZ", ClassEquity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPriceAvailable))

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "XYZ", ex.Symbol)
	assert.Equal(t, ClassEquity, ex.Class)
	assert.Len(t, ex.Attempts, 2)
	assert.Equal(t, attempts, ex.Attempts)
}

func TestChainBreakerSkipsFailingProvider(t *testing.T) {
	a, b := NewMockProvider("A"), NewMockProvider("B")
	a.SetError("AAPL", NewHTTPStatusError("A", "AAPL", 500, ""))
	a.SetError("MSFT", NewHTTPStatusError("A", "MSFT", 500, ""))
	b.SetQuote("AAPL", "2025-06-08", 198.0)
	b.SetQuote("MSFT", "2025-06-08", 470.0)

	chain := newTestChain(t, 1, a, b)
	_, _, err := chain.Fetch(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)
	callsAfterFirst := a.Calls()

	q, attempts, err := chain.Fetch(context.Background(), "MSFT", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, "B", q.Provider)
	assert.Equal(t, OutcomeBreakerOpen, attempts[0].Outcome)
	assert.Equal(t, callsAfterFirst, a.Calls(), "open breaker must not call the provider")
}

func TestChainUnknownClass(t *testing.T) {
	chain := newTestChain(t, 3, NewMockProvider("A"))
	_, _, err := chain.Fetch(context.Background(), "BTC", ClassCrypto)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoPriceAvailable))
}

func TestChainCancelledContext(t *testing.T) {
	a := NewMockProvider("A")
	a.SetQuote("AAPL", "2025-06-08", 198.0)
	chain := newTestChain(t, 3, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := chain.Fetch(ctx, "AAPL", ClassEquity)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.Calls())
}

func TestNewChainRejectsUnknownProvider(t *testing.T) {
	_, err := NewChain(map[string]Provider{}, ChainConfig{
		Order: map[AssetClass][]string{ClassEquity: {"ghost"}},
	})
	assert.Error(t, err)
}

func TestNewChainFromConfig(t *testing.T) {
	disabled := false
	cfg := config.Default()
	cfg.Providers = map[string]config.Provider{
		"mock":  {MinIntervalSeconds: 0},
		"mock2": {Enabled: &disabled},
	}
	cfg.Chains = map[string][]string{
		"equity": {"mock2", "mock"},
		"index":  {"mock"},
	}
	providers, err := BuildProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 1)

	chain, err := NewChainFromConfig(cfg, providers)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock"}, chain.Order(ClassEquity))
	assert.Equal(t, []string{"mock"}, chain.Order(ClassIndex))
	assert.Empty(t, chain.Order(ClassCrypto))
}
