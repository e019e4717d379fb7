package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SeedHolding is one position at inception.
type SeedHolding struct {
	Ticker string  `yaml:"ticker" json:"ticker"`
	Name   string  `yaml:"name" json:"name"`
	Shares float64 `yaml:"shares" json:"shares"`
	Price  float64 `yaml:"price" json:"price"`
}

// SeedBenchmark is one benchmark's inception close.
type SeedBenchmark struct {
	ChartKey string  `yaml:"chart_key" json:"chart_key"`
	Close    float64 `yaml:"close" json:"close"`
}

// Inception describes a portfolio on its first day. InceptionValue defaults to
// the rounded holdings value and must match it when given.
type Inception struct {
	PortfolioName  string                   `yaml:"portfolio_name" json:"portfolio_name"`
	Date           string                   `yaml:"inception_date" json:"inception_date"`
	InceptionValue float64                  `yaml:"inception_value" json:"inception_value"`
	Holdings       []SeedHolding            `yaml:"holdings" json:"holdings"`
	Benchmarks     map[string]SeedBenchmark `yaml:"benchmarks" json:"benchmarks"`
}

// Seed builds the inception snapshot: one history entry, every return at zero
// and every normalized series at 100.
func Seed(in Inception) (*Snapshot, error) {
	if !isDate(in.Date) {
		return nil, fmt.Errorf("inception_date %q is not YYYY-MM-DD", in.Date)
	}
	if len(in.Holdings) == 0 {
		return nil, errors.New("inception needs at least one holding")
	}

	s := &Snapshot{
		Meta: Meta{
			PortfolioName: in.PortfolioName,
			InceptionDate: in.Date,
			CurrentDate:   in.Date,
		},
		Benchmarks: make(map[string]BenchmarkSeries, len(in.Benchmarks)),
	}

	total := decimal.Zero
	seen := map[string]bool{}
	for _, sh := range in.Holdings {
		ticker := strings.ToUpper(strings.TrimSpace(sh.Ticker))
		if ticker == "" || seen[ticker] {
			return nil, fmt.Errorf("holding ticker %q is empty or duplicated", sh.Ticker)
		}
		seen[ticker] = true
		if sh.Price <= 0 || sh.Shares < 0 {
			return nil, fmt.Errorf("%s: price must be positive and shares non-negative", ticker)
		}
		value := dec(sh.Shares).Mul(dec(sh.Price)).Round(0)
		total = total.Add(value)
		s.Holdings = append(s.Holdings, Holding{
			Ticker:       ticker,
			Name:         sh.Name,
			Shares:       sh.Shares,
			Prices:       map[string]float64{in.Date: round(dec(sh.Price), 2)},
			CurrentValue: round(value, 0),
		})
	}

	value := round(total, 0)
	if in.InceptionValue == 0 {
		in.InceptionValue = value
	}
	if in.InceptionValue != value {
		return nil, fmt.Errorf("inception_value %v does not match holdings value %v", in.InceptionValue, value)
	}
	s.Meta.InceptionValue = in.InceptionValue
	s.PortfolioTotals = Totals{CurrentValue: value}
	s.PortfolioHistory = []HistoryEntry{{Date: in.Date, Value: value}}

	chart := NormalizedEntry{
		Date:           in.Date,
		PortfolioValue: value,
		GenAINorm:      100,
		Closes:         map[string]float64{},
		Norms:          map[string]float64{},
	}
	keys := make([]string, 0, len(in.Benchmarks))
	for k := range in.Benchmarks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b := in.Benchmarks[k]
		if b.Close <= 0 {
			return nil, fmt.Errorf("benchmark %s: close must be positive", k)
		}
		ref := round(dec(b.Close), 2)
		s.Benchmarks[k] = BenchmarkSeries{
			InceptionReference: ref,
			ChartKey:           b.ChartKey,
			History:            []BenchmarkEntry{{Date: in.Date, Close: ref}},
		}
		ck := s.ChartKey(k)
		chart.Closes[ck] = ref
		chart.Norms[ck] = 100
	}
	s.NormalizedChart = []NormalizedEntry{chart}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
