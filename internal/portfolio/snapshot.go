package portfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used for every date key in the snapshot.
const DateLayout = "2006-01-02"

// PriceStatusStale tags an entry whose close was carried forward from the
// previous period instead of freshly fetched.
const PriceStatusStale = "stale_carried_forward"

var (
	ErrDuplicatePeriod = errors.New("evaluation date equals snapshot current_date")
	ErrOutOfOrder      = errors.New("evaluation date precedes snapshot current_date")
	ErrHistoryConflict = errors.New("history already holds an entry for evaluation date")
	ErrMissingQuote    = errors.New("fetch batch has no quote")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Meta is write-once apart from CurrentDate.
type Meta struct {
	PortfolioName  string  `json:"portfolio_name"`
	InceptionDate  string  `json:"inception_date"`
	InceptionValue float64 `json:"inception_value"`
	CurrentDate    string  `json:"current_date"`
}

// Holding is one tracked equity position. Prices is keyed by evaluation date
// and only ever grows.
type Holding struct {
	Ticker       string             `json:"ticker"`
	Name         string             `json:"name"`
	Shares       float64            `json:"shares"`
	Prices       map[string]float64 `json:"prices"`
	CurrentValue float64            `json:"current_value"`
	WeeklyPct    float64            `json:"weekly_pct"`
	TotalPct     float64            `json:"total_pct"`
	PriceSource  string             `json:"price_source,omitempty"`
	PriceStatus  string             `json:"price_status,omitempty"`
}

// InceptionPrice is the price on inceptionDate. A holding added after inception
// has no such price and uses its earliest recorded one.
func (h Holding) InceptionPrice(inceptionDate string) (float64, bool) {
	if p, ok := h.Prices[inceptionDate]; ok {
		return p, p > 0
	}
	first := ""
	for d := range h.Prices {
		if first == "" || d < first {
			first = d
		}
	}
	if first == "" {
		return 0, false
	}
	p := h.Prices[first]
	return p, p > 0
}

type Totals struct {
	CurrentValue float64 `json:"current_value"`
	WeeklyPct    float64 `json:"weekly_pct"`
	TotalPct     float64 `json:"total_pct"`
}

type BenchmarkEntry struct {
	Date        string  `json:"date"`
	Close       float64 `json:"close"`
	WeeklyPct   float64 `json:"weekly_pct"`
	TotalPct    float64 `json:"total_pct"`
	Source      string  `json:"source,omitempty"`
	PriceStatus string  `json:"price_status,omitempty"`
}

// BenchmarkSeries holds one benchmark's immutable inception reference and its
// append-only history.
type BenchmarkSeries struct {
	InceptionReference float64          `json:"inception_reference"`
	ChartKey           string           `json:"chart_key,omitempty"`
	History            []BenchmarkEntry `json:"history"`
}

type HistoryEntry struct {
	Date      string  `json:"date"`
	Value     float64 `json:"value"`
	WeeklyPct float64 `json:"weekly_pct"`
	TotalPct  float64 `json:"total_pct"`
}

// NormalizedEntry is one base-100 comparison point. Closes and Norms are keyed
// by chart key and serialize as flat "<key>_close" / "<key>_norm" fields.
type NormalizedEntry struct {
	Date           string
	PortfolioValue float64
	GenAINorm      float64
	Closes         map[string]float64
	Norms          map[string]float64
}

// Snapshot is the whole master document.
type Snapshot struct {
	Meta             Meta                       `json:"meta"`
	Holdings         []Holding                  `json:"stocks"`
	PortfolioTotals  Totals                     `json:"portfolio_totals"`
	Benchmarks       map[string]BenchmarkSeries `json:"benchmarks"`
	PortfolioHistory []HistoryEntry             `json:"portfolio_history"`
	NormalizedChart  []NormalizedEntry          `json:"normalized_chart"`
}

var defaultChartKeys = map[string]string{
	"sp500":   "spx",
	"bitcoin": "btc",
}

// ChartKey returns the normalized_chart prefix for benchmark key.
func (s *Snapshot) ChartKey(key string) string {
	if b, ok := s.Benchmarks[key]; ok && b.ChartKey != "" {
		return b.ChartKey
	}
	if k, ok := defaultChartKeys[key]; ok {
		return k
	}
	return key
}

// BenchmarkKeys returns benchmark keys in sorted order.
func (s *Snapshot) BenchmarkKeys() []string {
	keys := make([]string, 0, len(s.Benchmarks))
	for k := range s.Benchmarks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PeriodID is "W<n>" where n counts evaluation periods after inception.
func (s *Snapshot) PeriodID() string {
	n := len(s.PortfolioHistory) - 1
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("W%d", n)
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Meta:             s.Meta,
		PortfolioTotals:  s.PortfolioTotals,
		Holdings:         make([]Holding, len(s.Holdings)),
		Benchmarks:       make(map[string]BenchmarkSeries, len(s.Benchmarks)),
		PortfolioHistory: append([]HistoryEntry(nil), s.PortfolioHistory...),
		NormalizedChart:  make([]NormalizedEntry, len(s.NormalizedChart)),
	}
	for i, h := range s.Holdings {
		h.Prices = copyFloats(h.Prices)
		out.Holdings[i] = h
	}
	for k, b := range s.Benchmarks {
		b.History = append([]BenchmarkEntry(nil), b.History...)
		out.Benchmarks[k] = b
	}
	for i, e := range s.NormalizedChart {
		e.Closes = copyFloats(e.Closes)
		e.Norms = copyFloats(e.Norms)
		out.NormalizedChart[i] = e
	}
	return out
}

func copyFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate checks the structural invariants of a snapshot.
func (s *Snapshot) Validate() error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

func (s *Snapshot) validate() error {
	m := s.Meta
	if !isDate(m.InceptionDate) {
		return fmt.Errorf("meta.inception_date %q is not YYYY-MM-DD", m.InceptionDate)
	}
	if !isDate(m.CurrentDate) {
		return fmt.Errorf("meta.current_date %q is not YYYY-MM-DD", m.CurrentDate)
	}
	if m.CurrentDate < m.InceptionDate {
		return fmt.Errorf("current_date %s precedes inception_date %s", m.CurrentDate, m.InceptionDate)
	}
	if m.InceptionValue <= 0 {
		return fmt.Errorf("meta.inception_value must be positive")
	}

	if len(s.PortfolioHistory) == 0 {
		return errors.New("portfolio_history is empty")
	}
	if first := s.PortfolioHistory[0].Date; first != m.InceptionDate {
		return fmt.Errorf("portfolio_history starts at %s, inception is %s", first, m.InceptionDate)
	}
	dates := make([]string, len(s.PortfolioHistory))
	for i, e := range s.PortfolioHistory {
		dates[i] = e.Date
	}
	if err := chronological("portfolio_history", dates); err != nil {
		return err
	}
	if last := dates[len(dates)-1]; last != m.CurrentDate {
		return fmt.Errorf("portfolio_history ends at %s, current_date is %s", last, m.CurrentDate)
	}

	if len(s.Holdings) == 0 {
		return errors.New("no holdings")
	}
	seen := make(map[string]bool, len(s.Holdings))
	for _, h := range s.Holdings {
		if strings.TrimSpace(h.Ticker) == "" {
			return errors.New("holding with empty ticker")
		}
		if seen[h.Ticker] {
			return fmt.Errorf("duplicate holding %s", h.Ticker)
		}
		seen[h.Ticker] = true
		if h.Shares < 0 {
			return fmt.Errorf("%s: negative shares", h.Ticker)
		}
		if _, ok := h.InceptionPrice(m.InceptionDate); !ok {
			return fmt.Errorf("%s: no positive inception price", h.Ticker)
		}
		if p, ok := h.Prices[m.CurrentDate]; !ok || p <= 0 {
			return fmt.Errorf("%s: missing price for current_date %s", h.Ticker, m.CurrentDate)
		}
		for d := range h.Prices {
			if !isDate(d) {
				return fmt.Errorf("%s: bad price date %q", h.Ticker, d)
			}
		}
	}

	for _, key := range s.BenchmarkKeys() {
		b := s.Benchmarks[key]
		if b.InceptionReference <= 0 {
			return fmt.Errorf("benchmark %s: inception_reference must be positive", key)
		}
		if len(b.History) == 0 {
			return fmt.Errorf("benchmark %s: empty history", key)
		}
		bd := make([]string, len(b.History))
		for i, e := range b.History {
			bd[i] = e.Date
		}
		if err := chronological("benchmark "+key, bd); err != nil {
			return err
		}
		if last := bd[len(bd)-1]; last != m.CurrentDate {
			return fmt.Errorf("benchmark %s ends at %s, current_date is %s", key, last, m.CurrentDate)
		}
	}

	if len(s.NormalizedChart) > 0 {
		cd := make([]string, len(s.NormalizedChart))
		for i, e := range s.NormalizedChart {
			cd[i] = e.Date
		}
		if err := chronological("normalized_chart", cd); err != nil {
			return err
		}
		first := s.NormalizedChart[0]
		if first.GenAINorm != 100 {
			return fmt.Errorf("normalized_chart starts at genai_norm=%v, want 100", first.GenAINorm)
		}
		for k, v := range first.Norms {
			if v != 100 {
				return fmt.Errorf("normalized_chart starts at %s_norm=%v, want 100", k, v)
			}
		}
	}
	return nil
}

func chronological(name string, dates []string) error {
	for i, d := range dates {
		if !isDate(d) {
			return fmt.Errorf("%s[%d]: bad date %q", name, i, d)
		}
		if i > 0 && d <= dates[i-1] {
			return fmt.Errorf("%s not strictly chronological at %s", name, d)
		}
	}
	return nil
}

func isDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// MarshalJSON writes the flat renderer shape:
// date, portfolio_value, genai_norm, <k>_close..., <k>_norm... (keys sorted).
func (e NormalizedEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(key)
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}
	if err := write("date", e.Date); err != nil {
		return nil, err
	}
	if err := write("portfolio_value", e.PortfolioValue); err != nil {
		return nil, err
	}
	if err := write("genai_norm", e.GenAINorm); err != nil {
		return nil, err
	}
	for _, k := range sortedKeys(e.Closes) {
		if err := write(k+"_close", e.Closes[k]); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(e.Norms) {
		if err := write(k+"_norm", e.Norms[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *NormalizedEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = NormalizedEntry{}
	for k, v := range raw {
		var err error
		switch {
		case k == "date":
			err = json.Unmarshal(v, &e.Date)
		case k == "portfolio_value":
			err = json.Unmarshal(v, &e.PortfolioValue)
		case k == "genai_norm":
			err = json.Unmarshal(v, &e.GenAINorm)
		case strings.HasSuffix(k, "_close"):
			var f float64
			if err = json.Unmarshal(v, &f); err == nil {
				if e.Closes == nil {
					e.Closes = map[string]float64{}
				}
				e.Closes[strings.TrimSuffix(k, "_close")] = f
			}
		case strings.HasSuffix(k, "_norm"):
			var f float64
			if err = json.Unmarshal(v, &f); err == nil {
				if e.Norms == nil {
					e.Norms = map[string]float64{}
				}
				e.Norms[strings.TrimSuffix(k, "_norm")] = f
			}
		}
		if err != nil {
			return fmt.Errorf("normalized_chart field %s: %w", k, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
