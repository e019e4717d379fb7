package portfolio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// masterJSON mirrors the document layout consumed by the report renderer.
const masterJSON = `{
  "meta": {"portfolio_name": "GenAI Portfolio", "inception_date": "2025-01-01", "inception_value": 1500, "current_date": "2025-06-01"},
  "stocks": [{"ticker": "AAPL", "name": "Apple Inc.", "shares": 10,
              "prices": {"2025-01-01": 150.0, "2025-06-01": 180.0},
              "current_value": 1800, "weekly_pct": 20.0, "total_pct": 20.0}],
  "portfolio_totals": {"current_value": 1800, "weekly_pct": 20.0, "total_pct": 20.0},
  "benchmarks": {
    "sp500": {"inception_reference": 5000, "history": [
      {"date": "2025-01-01", "close": 5000, "weekly_pct": 0, "total_pct": 0},
      {"date": "2025-06-01", "close": 5500, "weekly_pct": 10, "total_pct": 10}]},
    "bitcoin": {"inception_reference": 50000, "history": [
      {"date": "2025-01-01", "close": 50000, "weekly_pct": 0, "total_pct": 0},
      {"date": "2025-06-01", "close": 100000, "weekly_pct": 100, "total_pct": 100}]}
  },
  "portfolio_history": [
    {"date": "2025-01-01", "value": 1500, "weekly_pct": 0, "total_pct": 0},
    {"date": "2025-06-01", "value": 1800, "weekly_pct": 20, "total_pct": 20}],
  "normalized_chart": [
    {"date": "2025-01-01", "portfolio_value": 1500, "genai_norm": 100.0,
     "spx_close": 5000, "btc_close": 50000, "spx_norm": 100.0, "btc_norm": 100.0},
    {"date": "2025-06-01", "portfolio_value": 1800, "genai_norm": 120.0,
     "spx_close": 5500, "btc_close": 100000, "spx_norm": 110.0, "btc_norm": 200.0}]
}`

func TestSnapshotDecodesRendererDocument(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(masterJSON), &s))
	require.NoError(t, s.Validate())

	assert.Equal(t, aaplSnapshot(), &s)
	assert.Equal(t, "W1", s.PeriodID())
	assert.Equal(t, "spx", s.ChartKey("sp500"))
	assert.Equal(t, "btc", s.ChartKey("bitcoin"))
	assert.Equal(t, "nasdaq", s.ChartKey("nasdaq"))
	assert.Equal(t, []string{"bitcoin", "sp500"}, s.BenchmarkKeys())
}

func TestNormalizedEntryFlatJSON(t *testing.T) {
	e := NormalizedEntry{
		Date:           "2025-06-08",
		PortfolioValue: 1980,
		GenAINorm:      132,
		Closes:         map[string]float64{"spx": 6000, "btc": 105000.5},
		Norms:          map[string]float64{"spx": 120, "btc": 210},
	}
	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t,
		`{"date":"2025-06-08","portfolio_value":1980,"genai_norm":132,"btc_close":105000.5,"spx_close":6000,"btc_norm":210,"spx_norm":120}`,
		string(b))

	var back NormalizedEntry
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, e, back)
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	s := aaplSnapshot()
	c := s.Clone()

	c.Holdings[0].Prices["2025-06-08"] = 1
	c.Benchmarks["sp500"] = BenchmarkSeries{InceptionReference: 1}
	c.NormalizedChart[0].Norms["spx"] = 1
	c.PortfolioHistory[0].Value = 1

	assert.Len(t, s.Holdings[0].Prices, 2)
	assert.Equal(t, 5000.0, s.Benchmarks["sp500"].InceptionReference)
	assert.Equal(t, 100.0, s.NormalizedChart[0].Norms["spx"])
	assert.Equal(t, 1500.0, s.PortfolioHistory[0].Value)
	assert.Nil(t, (*Snapshot)(nil).Clone())
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"bad current date", func(s *Snapshot) { s.Meta.CurrentDate = "06/01/2025" }},
		{"zero inception value", func(s *Snapshot) { s.Meta.InceptionValue = 0 }},
		{"history not ending at current date", func(s *Snapshot) { s.Meta.CurrentDate = "2025-06-02" }},
		{"history not starting at inception", func(s *Snapshot) { s.PortfolioHistory[0].Date = "2024-12-31" }},
		{"history out of order", func(s *Snapshot) {
			s.PortfolioHistory[0], s.PortfolioHistory[1] = s.PortfolioHistory[1], s.PortfolioHistory[0]
		}},
		{"empty history", func(s *Snapshot) { s.PortfolioHistory = nil }},
		{"no holdings", func(s *Snapshot) { s.Holdings = nil }},
		{"duplicate holding", func(s *Snapshot) { s.Holdings = append(s.Holdings, s.Holdings[0]) }},
		{"zero inception price", func(s *Snapshot) { s.Holdings[0].Prices["2025-01-01"] = 0 }},
		{"missing current price", func(s *Snapshot) { delete(s.Holdings[0].Prices, "2025-06-01") }},
		{"negative shares", func(s *Snapshot) { s.Holdings[0].Shares = -1 }},
		{"benchmark lagging", func(s *Snapshot) {
			b := s.Benchmarks["sp500"]
			b.History = b.History[:1]
			s.Benchmarks["sp500"] = b
		}},
		{"benchmark zero reference", func(s *Snapshot) {
			b := s.Benchmarks["bitcoin"]
			b.InceptionReference = 0
			s.Benchmarks["bitcoin"] = b
		}},
		{"chart not base 100", func(s *Snapshot) { s.NormalizedChart[0].GenAINorm = 99.5 }},
		{"benchmark chart not base 100", func(s *Snapshot) { s.NormalizedChart[0].Norms["btc"] = 101 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := aaplSnapshot()
			tt.mutate(s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSnapshot)
		})
	}
}

func TestSeed(t *testing.T) {
	s, err := Seed(Inception{
		PortfolioName: "GenAI Portfolio",
		Date:          "2025-01-01",
		Holdings: []SeedHolding{
			{Ticker: "aapl", Name: "Apple Inc.", Shares: 10, Price: 150},
			{Ticker: "NVDA", Name: "NVIDIA", Shares: 2.5, Price: 133.333},
		},
		Benchmarks: map[string]SeedBenchmark{
			"sp500":   {ChartKey: "spx", Close: 5881.63},
			"bitcoin": {Close: 93429.2},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1833.0, s.Meta.InceptionValue) // 1500 + 333
	assert.Equal(t, "2025-01-01", s.Meta.CurrentDate)
	assert.Equal(t, "AAPL", s.Holdings[0].Ticker)
	assert.Equal(t, 133.33, s.Holdings[1].Prices["2025-01-01"])
	assert.Equal(t, "W0", s.PeriodID())

	chart := s.NormalizedChart[0]
	assert.Equal(t, 100.0, chart.GenAINorm)
	assert.Equal(t, map[string]float64{"spx": 100, "btc": 100}, chart.Norms)
	assert.Equal(t, 5881.63, s.Benchmarks["sp500"].InceptionReference)
}

func TestSeedRejectsInconsistentInput(t *testing.T) {
	base := func() Inception {
		return Inception{
			Date:     "2025-01-01",
			Holdings: []SeedHolding{{Ticker: "AAPL", Shares: 10, Price: 150}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Inception)
	}{
		{"bad date", func(in *Inception) { in.Date = "" }},
		{"no holdings", func(in *Inception) { in.Holdings = nil }},
		{"duplicate ticker", func(in *Inception) { in.Holdings = append(in.Holdings, in.Holdings[0]) }},
		{"zero price", func(in *Inception) { in.Holdings[0].Price = 0 }},
		{"value mismatch", func(in *Inception) { in.InceptionValue = 10000 }},
		{"bad benchmark", func(in *Inception) { in.Benchmarks = map[string]SeedBenchmark{"sp500": {}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			_, err := Seed(in)
			assert.Error(t, err)
		})
	}
}
