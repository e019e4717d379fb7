package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
)

// DateLayout is the ISO calendar-date shape used everywhere in the snapshot.
const DateLayout = "2006-01-02"

// AssetClass selects the provider chain for a symbol.
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassCrypto AssetClass = "crypto"
	ClassIndex  AssetClass = "index"
)

// ParseAssetClass maps a config string to an AssetClass.
func ParseAssetClass(s string) (AssetClass, error) {
	switch c := AssetClass(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassEquity, ClassCrypto, ClassIndex:
		return c, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Provider fetches the latest close for one symbol from one external source.
//
// A negative result (no usable price, provider-side rate-limit notice, malformed
// payload) is returned as a *QuoteError for which IsUnavailable is true. Transport
// failures and retryable HTTP statuses come back as retryable *QuoteErrors.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string, class AssetClass) (Quote, error)
}

// Quote is the uniform result of a provider call.
type Quote struct {
	Symbol       string  `json:"symbol"`
	Date         string  `json:"date"`     // YYYY-MM-DD trade date
	Close        float64 `json:"close"`    // latest close / last price
	Provider     string  `json:"provider"` // provenance tag
	DateFallback bool    `json:"date_fallback,omitempty"`
}

// NewQuote validates a provider result at the adapter boundary.
func NewQuote(symbol, date string, close float64, provider string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, NewBadSymbolError(provider, symbol, "empty symbol")
	}
	if math.IsNaN(close) || math.IsInf(close, 0) || close <= 0 {
		return Quote{}, NewMalformedError(provider, symbol, fmt.Sprintf("invalid close %v", close))
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Quote{}, NewMalformedError(provider, symbol, fmt.Sprintf("invalid date %q", date))
	}
	return Quote{Symbol: symbol, Date: date, Close: close, Provider: provider}, nil
}

// LatestMarketDate returns now's UTC date, moved back to Friday on weekends.
func LatestMarketDate(now time.Time) string {
	d := now.UTC()
	switch d.Weekday() {
	case time.Saturday:
		d = d.AddDate(0, 0, -1)
	case time.Sunday:
		d = d.AddDate(0, 0, -2)
	}
	return d.Format(DateLayout)
}

// Clock is swapped in tests.
var Clock = time.Now

// tradeDate validates the date prefix of a provider-supplied value. An invalid value
// is replaced by LatestMarketDate and reported through fallback=true plus a warning.
func tradeDate(provider, symbol, raw string) (date string, fallback bool) {
	if len(raw) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, raw[:len(DateLayout)]); err == nil {
			return t.Format(DateLayout), false
		}
	}
	date = LatestMarketDate(Clock())
	observ.Warn("quote_date_fallback", map[string]any{
		"provider": provider,
		"symbol":   symbol,
		"raw_date": raw,
		"date":     date,
	})
	return date, true
}

// Error types
const (
	ErrTypeUnavailable = "unavailable" // no usable price in the response
	ErrTypeRateLimit   = "rate_limit"  // provider-side budget notice in a 200 body
	ErrTypeMalformed   = "malformed"   // unparsable body, bad price or date
	ErrTypeBadSymbol   = "bad_symbol"  // provider rejected the symbol
	ErrTypeHTTPStatus  = "http_status" // non-200 status
	ErrTypeNetwork     = "network"     // timeout, refused connection, reset
)

// QuoteError represents different types of quote fetch errors
type QuoteError struct {
	Type       string
	Provider   string
	Symbol     string
	Message    string
	StatusCode int
	Cause      error
}

func (e *QuoteError) Error() string {
	msg := fmt.Sprintf("%s %s error for %s: %s", e.Provider, e.Type, e.Symbol, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *QuoteError) Unwrap() error { return e.Cause }

// Retryable reports transient failures: transport errors, HTTP 5xx and 429.
func (e *QuoteError) Retryable() bool {
	switch e.Type {
	case ErrTypeNetwork:
		return true
	case ErrTypeHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// IsUnavailable reports a negative provider result: the chain should move on
// without retrying.
func IsUnavailable(err error) bool {
	var qe *QuoteError
	if !errors.As(err, &qe) {
		return false
	}
	switch qe.Type {
	case ErrTypeUnavailable, ErrTypeRateLimit, ErrTypeMalformed, ErrTypeBadSymbol:
		return true
	}
	return false
}

// IsRetryable is the retry predicate for provider calls.
func IsRetryable(err error) bool {
	var qe *QuoteError
	if errors.As(err, &qe) {
		return qe.Retryable()
	}
	return false
}

// Common error constructors
func NewUnavailableError(provider, symbol, message string) *QuoteError {
	return &QuoteError{Type: ErrTypeUnavailable, Provider: provider, Symbol: symbol, Message: message}
}

func NewRateLimitError(provider, symbol, message string) *QuoteError {
	return &QuoteError{Type: ErrTypeRateLimit, Provider: provider, Symbol: symbol, Message: message}
}

func NewMalformedError(provider, symbol, message string) *QuoteError {
	return &QuoteError{Type: ErrTypeMalformed, Provider: provider, Symbol: symbol, Message: message}
}

func NewBadSymbolError(provider, symbol, message string) *QuoteError {
	return &QuoteError{Type: ErrTypeBadSymbol, Provider: provider, Symbol: symbol, Message: message}
}

func NewHTTPStatusError(provider, symbol string, status int, body string) *QuoteError {
	return &QuoteError{
		Type:       ErrTypeHTTPStatus,
		Provider:   provider,
		Symbol:     symbol,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d: %s", status, truncate(body, 200)),
	}
}

func NewNetworkError(provider, symbol, message string, cause error) *QuoteError {
	return &QuoteError{Type: ErrTypeNetwork, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
