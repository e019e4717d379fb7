package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
	"github.com/Rajchodisetti/weekly-portfolio/internal/ratelimit"
	"github.com/Rajchodisetti/weekly-portfolio/internal/retry"
)

// ErrNoPriceAvailable is wrapped by ExhaustedError.
var ErrNoPriceAvailable = errors.New("no price available")

// Attempt outcomes
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable" // negative result, no retry
	OutcomeExhausted   = "exhausted"   // transient failures outlasted the retry budget
	OutcomePermanent   = "permanent"   // non-retryable failure
	OutcomeBreakerOpen = "breaker_open"
	OutcomeMissing     = "not_configured"
)

// Attempt records one provider's part in a chain fetch.
type Attempt struct {
	Provider string `json:"provider"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
}

// ExhaustedError means every provider for a symbol failed.
type ExhaustedError struct {
	Symbol   string
	Class    AssetClass
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Provider+"="+a.Outcome)
	}
	return fmt.Sprintf("%v for %s (%s): [%s]", ErrNoPriceAvailable, e.Symbol, e.Class, strings.Join(parts, " "))
}

func (e *ExhaustedError) Unwrap() error { return ErrNoPriceAvailable }

// ChainConfig holds the failover chain settings.
type ChainConfig struct {
	Order           map[AssetClass][]string
	Policy          retry.Policy
	Pacer           *ratelimit.Pacer
	Symbols         *SymbolMap
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Chain tries providers in priority order per asset class. Each provider call is
// paced, retried on transient failures and guarded by a per-provider breaker.
type Chain struct {
	providers map[string]Provider
	order     map[AssetClass][]string
	policy    retry.Policy
	pacer     *ratelimit.Pacer
	symbols   *SymbolMap
	breakers  map[string]*gobreaker.CircuitBreaker
}

// NewChain wires providers into a chain. Every provider named in cfg.Order must be
// present in providers.
func NewChain(providers map[string]Provider, cfg ChainConfig) (*Chain, error) {
	if cfg.Pacer == nil {
		cfg.Pacer = ratelimit.New(nil)
	}
	if cfg.Policy.Retryable == nil {
		cfg.Policy.Retryable = IsRetryable
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 5 * time.Minute
	}

	c := &Chain{
		providers: providers,
		order:     make(map[AssetClass][]string),
		policy:    cfg.Policy,
		pacer:     cfg.Pacer,
		symbols:   cfg.Symbols,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for class, names := range cfg.Order {
		for _, name := range names {
			if _, ok := providers[name]; !ok {
				return nil, fmt.Errorf("chain %s: provider %q not registered", class, name)
			}
		}
		c.order[class] = append([]string(nil), names...)
	}
	for name := range providers {
		c.breakers[name] = newBreaker(name, cfg.BreakerFailures, cfg.BreakerCooldown)
	}

	observ.Log("provider_chain_created", map[string]any{
		"equity": c.order[ClassEquity],
		"crypto": c.order[ClassCrypto],
		"index":  c.order[ClassIndex],
	})
	return c, nil
}

// NewChainFromConfig builds a chain from the loaded configuration.
func NewChainFromConfig(cfg config.Root, providers map[string]Provider) (*Chain, error) {
	order := make(map[AssetClass][]string)
	intervals := make(map[string]time.Duration)
	for classStr, names := range cfg.Chains {
		class, err := ParseAssetClass(classStr)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			pc, ok := cfg.Providers[name]
			if ok && !pc.IsEnabled() {
				continue
			}
			order[class] = append(order[class], name)
			intervals[name] = time.Duration(pc.MinIntervalSeconds * float64(time.Second))
		}
	}

	policy := retry.Policy{
		MaxRetries:    cfg.Retry.MaxRetries,
		InitialDelay:  time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
		BackoffFactor: cfg.Retry.BackoffFactor,
		MaxDelay:      time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		Retryable:     IsRetryable,
	}
	return NewChain(providers, ChainConfig{
		Order:           order,
		Policy:          policy,
		Pacer:           ratelimit.New(intervals),
		Symbols:         NewSymbolMap(cfg.Symbols),
		BreakerFailures: uint32(cfg.Breaker.ConsecutiveFailures),
		BreakerCooldown: time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
	})
}

func newBreaker(name string, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// negative results and cancellation say nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || IsUnavailable(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observ.Warn("provider_breaker_state", map[string]any{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			})
		},
	})
}

// Order returns the provider order for class.
func (c *Chain) Order(class AssetClass) []string {
	return append([]string(nil), c.order[class]...)
}

// Fetch returns the first usable quote for symbol along with the attempt trail.
// Providers after the one that succeeded are not called.
func (c *Chain) Fetch(ctx context.Context, symbol string, class AssetClass) (Quote, []Attempt, error) {
	names := c.order[class]
	if len(names) == 0 {
		return Quote{}, nil, fmt.Errorf("no provider chain for asset class %q", class)
	}

	attempts := make([]Attempt, 0, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return Quote{}, attempts, err
		}
		if i > 0 {
			observ.IncCounter("provider_failovers_total", map[string]string{"class": string(class)})
			observ.Log("provider_failover", map[string]any{
				"symbol": symbol,
				"class":  string(class),
				"from":   names[i-1],
				"to":     name,
			})
		}

		q, att, err := c.try(ctx, name, symbol, class)
		attempts = append(attempts, att)
		observ.IncCounter("provider_requests_total", map[string]string{"provider": name, "result": att.Outcome})
		if err == nil {
			observ.Log("quote_fetched", map[string]any{
				"symbol":   q.Symbol,
				"provider": q.Provider,
				"close":    q.Close,
				"date":     q.Date,
			})
			return q, attempts, nil
		}
		if ctx.Err() != nil {
			return Quote{}, attempts, err
		}
		observ.Warn("provider_failed", map[string]any{
			"symbol":   symbol,
			"provider": name,
			"outcome":  att.Outcome,
			"reason":   att.Reason,
		})
	}

	exhausted := &ExhaustedError{Symbol: symbol, Class: class, Attempts: attempts}
	observ.Error("quote_exhausted", map[string]any{
		"symbol": symbol,
		"class":  string(class),
		"error":  exhausted.Error(),
	})
	return Quote{}, attempts, exhausted
}

// try runs one provider through breaker, pacer and retry policy.
func (c *Chain) try(ctx context.Context, name, symbol string, class AssetClass) (Quote, Attempt, error) {
	att := Attempt{Provider: name}
	p, ok := c.providers[name]
	if !ok {
		att.Outcome = OutcomeMissing
		return Quote{}, att, fmt.Errorf("provider %q not registered", name)
	}

	canonical := normalizeSymbol(symbol)
	wire := c.symbols.ProviderSymbol(name, symbol)
	breaker := c.breakers[name]
	if breaker.State() == gobreaker.StateOpen {
		att.Outcome = OutcomeBreakerOpen
		att.Reason = "circuit open"
		return Quote{}, att, gobreaker.ErrOpenState
	}

	res, err := breaker.Execute(func() (interface{}, error) {
		return retry.DoValue(ctx, c.policy, func(ctx context.Context, _ int) (Quote, error) {
			if _, err := c.pacer.Acquire(ctx, name); err != nil {
				return Quote{}, err
			}
			return p.Fetch(ctx, wire, class)
		})
	})
	if err == nil {
		att.Outcome = OutcomeOK
		q := res.(Quote)
		q.Symbol = canonical
		return q, att, nil
	}

	att.Reason = err.Error()
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		att.Outcome = OutcomeBreakerOpen
	case IsUnavailable(err):
		att.Outcome = OutcomeUnavailable
	case errors.Is(err, retry.ErrExhausted):
		att.Outcome = OutcomeExhausted
	default:
		att.Outcome = OutcomePermanent
	}
	return Quote{}, att, err
}
