package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Rajchodisetti/weekly-portfolio/internal/adapters"
	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
	"github.com/Rajchodisetti/weekly-portfolio/internal/portfolio"
	"github.com/Rajchodisetti/weekly-portfolio/internal/store"
)

// State is the run lifecycle position.
type State string

const (
	StateIdle           State = "idle"
	StateFetchingQuotes State = "fetching_quotes"
	StateRecomputing    State = "recomputing"
	StatePersisting     State = "persisting"
	StateAborted        State = "aborted"
)

// ConfigError covers problems detected before any network call: missing snapshot,
// missing credentials, benchmarks without a mapping.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// PersistError means the canonical snapshot could not be replaced. The previous
// document is still intact.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}
func (e *PersistError) Unwrap() error { return e.Err }

// Quoter is the chain surface the engine needs.
type Quoter interface {
	Fetch(ctx context.Context, symbol string, class adapters.AssetClass) (adapters.Quote, []adapters.Attempt, error)
}

// Options control a single run.
type Options struct {
	EvalDate   string // YYYY-MM-DD; empty or invalid uses the latest market date
	SkipLegacy bool
}

// Result is what a successful run produced.
type Result struct {
	RunID       string              `json:"run_id"`
	EvalDate    string              `json:"eval_date"`
	PeriodID    string              `json:"period_id"`
	Report      []ReportEntry       `json:"report"`
	ArchivePath string              `json:"archive_path,omitempty"`
	LegacyPath  string              `json:"legacy_path,omitempty"`
	Snapshot    *portfolio.Snapshot `json:"-"`
}

// Target is one symbol in the fetch plan.
type Target struct {
	Label     string // ticker for holdings, benchmark key otherwise
	Symbol    string
	Class     adapters.AssetClass
	Benchmark bool
}

type Engine struct {
	cfg   config.Root
	store *store.Store
	chain Quoter
	now   func() time.Time
	state State
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used to pick the default eval date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(cfg config.Root, st *store.Store, chain Quoter, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, store: st, chain: chain, now: time.Now, state: StateIdle}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewFromConfig validates cfg and wires providers, chain and store.
func NewFromConfig(cfg config.Root, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	providers, err := adapters.BuildProviders(cfg)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	chain, err := adapters.NewChainFromConfig(cfg, providers)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return New(cfg, store.New(cfg.State), chain, opts...), nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

func (e *Engine) transition(to State, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["from"] = string(e.state)
	kv["to"] = string(to)
	observ.Log("run_state", kv)
	e.state = to
}

// Run executes one evaluation period: load, fetch, recompute, persist. Nothing is
// written unless every quote was obtained and the recompute succeeded.
func (e *Engine) Run(ctx context.Context, opts Options) (res *Result, err error) {
	runID := uuid.NewString()
	observ.WithRunID(runID)
	start := time.Now()
	e.state = StateIdle

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "aborted"
			e.transition(StateAborted, map[string]any{"error": err.Error()})
			e.state = StateIdle
		}
		observ.IncCounter("run_total", map[string]string{"outcome": outcome})
		observ.RecordDuration("run_duration", time.Since(start), nil)
	}()

	prev, err := e.store.Load()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	evalDate := e.resolveEvalDate(opts.EvalDate)
	if err := portfolio.CheckEvalDate(prev, evalDate); err != nil {
		return nil, err
	}

	plan, err := FetchPlan(prev, e.cfg.Benchmarks)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	e.transition(StateFetchingQuotes, map[string]any{"eval_date": evalDate, "symbols": len(plan)})
	batch, report, err := e.fetch(ctx, plan)
	if err != nil {
		return nil, err
	}

	e.transition(StateRecomputing, nil)
	next, err := portfolio.Recompute(prev, batch, evalDate)
	if err != nil {
		return nil, err
	}

	e.transition(StatePersisting, nil)
	if err := e.store.Save(next); err != nil {
		return nil, &PersistError{Path: e.store.Path, Err: err}
	}

	res = &Result{
		RunID:    runID,
		EvalDate: evalDate,
		PeriodID: next.PeriodID(),
		Report:   report,
		Snapshot: next,
	}
	if path, err := e.store.Archive(next, evalDate); err != nil {
		observ.Warn("archive_failed", map[string]any{"error": err.Error()})
	} else {
		res.ArchivePath = path
	}
	if !opts.SkipLegacy && e.store.LegacyDir != "" {
		if path, err := e.store.LegacySnapshot(next, res.PeriodID); err != nil {
			observ.Warn("legacy_copy_failed", map[string]any{"error": err.Error()})
		} else {
			res.LegacyPath = path
		}
	}

	observ.SetGauge("portfolio_value", next.PortfolioTotals.CurrentValue, nil)
	e.transition(StateIdle, map[string]any{
		"eval_date":     evalDate,
		"period":        res.PeriodID,
		"current_value": next.PortfolioTotals.CurrentValue,
		"weekly_pct":    next.PortfolioTotals.WeeklyPct,
		"total_pct":     next.PortfolioTotals.TotalPct,
	})
	return res, nil
}

func (e *Engine) resolveEvalDate(override string) string {
	if override != "" {
		if _, err := time.Parse(portfolio.DateLayout, override); err == nil {
			return override
		}
		observ.Warn("eval_date_ignored", map[string]any{"eval_date": override})
	}
	return adapters.LatestMarketDate(e.now())
}

// fetch resolves every target sequentially. Under the carry_forward stale policy an
// exhausted chain yields a stale batch entry; otherwise it aborts the run.
func (e *Engine) fetch(ctx context.Context, plan []Target) (portfolio.FetchBatch, []ReportEntry, error) {
	holdings := make(map[string]portfolio.PriceQuote)
	benchmarks := make(map[string]portfolio.PriceQuote)
	report := make([]ReportEntry, 0, len(plan))

	for _, t := range plan {
		q, attempts, err := e.chain.Fetch(ctx, t.Symbol, t.Class)
		var pq portfolio.PriceQuote
		switch {
		case err == nil:
			pq = portfolio.PriceQuote{Date: q.Date, Close: q.Close, Source: q.Provider}
			report = append(report, NewReportEntry(t, q, attempts))
		case e.cfg.StalePolicy == config.StaleCarryForward && errors.Is(err, adapters.ErrNoPriceAvailable):
			observ.Warn("price_carried_forward", map[string]any{"symbol": t.Symbol, "label": t.Label})
			pq = portfolio.PriceQuote{Stale: true}
			report = append(report, StaleReportEntry(t, attempts))
		default:
			return portfolio.FetchBatch{}, nil, err
		}
		if t.Benchmark {
			benchmarks[t.Label] = pq
		} else {
			holdings[t.Label] = pq
		}
	}

	batch, err := portfolio.NewFetchBatch(holdings, benchmarks)
	if err != nil {
		return portfolio.FetchBatch{}, nil, err
	}
	return batch, report, nil
}

// FetchPlan lists holdings in snapshot order, then benchmarks by sorted key. Every
// benchmark in the snapshot needs a symbol mapping.
func FetchPlan(s *portfolio.Snapshot, mapping map[string]config.Benchmark) ([]Target, error) {
	plan := make([]Target, 0, len(s.Holdings)+len(s.Benchmarks))
	for _, h := range s.Holdings {
		plan = append(plan, Target{Label: h.Ticker, Symbol: h.Ticker, Class: adapters.ClassEquity})
	}

	keys := make([]string, 0, len(s.Benchmarks))
	for k := range s.Benchmarks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b, ok := mapping[k]
		if !ok {
			return nil, fmt.Errorf("benchmark %q has no symbol mapping", k)
		}
		class, err := adapters.ParseAssetClass(b.Class)
		if err != nil {
			return nil, fmt.Errorf("benchmark %q: %w", k, err)
		}
		plan = append(plan, Target{Label: k, Symbol: b.Symbol, Class: class, Benchmark: true})
	}
	return plan, nil
}
