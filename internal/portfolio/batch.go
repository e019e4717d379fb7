package portfolio

import (
	"fmt"
	"math"
)

// PriceQuote is one fetched close as handed to Recompute. A Stale quote carries
// the previous close forward; its Close is ignored.
type PriceQuote struct {
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Source string  `json:"source"`
	Stale  bool    `json:"stale,omitempty"`
}

// FetchBatch is the immutable result of one fetch phase: holdings keyed by
// ticker, benchmarks keyed by benchmark key.
type FetchBatch struct {
	holdings   map[string]PriceQuote
	benchmarks map[string]PriceQuote
}

// NewFetchBatch copies both maps and rejects unusable fresh quotes.
func NewFetchBatch(holdings, benchmarks map[string]PriceQuote) (FetchBatch, error) {
	b := FetchBatch{
		holdings:   make(map[string]PriceQuote, len(holdings)),
		benchmarks: make(map[string]PriceQuote, len(benchmarks)),
	}
	for k, q := range holdings {
		if err := checkQuote(k, q); err != nil {
			return FetchBatch{}, err
		}
		b.holdings[k] = q
	}
	for k, q := range benchmarks {
		if err := checkQuote(k, q); err != nil {
			return FetchBatch{}, err
		}
		b.benchmarks[k] = q
	}
	return b, nil
}

func checkQuote(key string, q PriceQuote) error {
	if q.Stale {
		return nil
	}
	if math.IsNaN(q.Close) || math.IsInf(q.Close, 0) || q.Close <= 0 {
		return fmt.Errorf("quote for %s: invalid close %v", key, q.Close)
	}
	return nil
}

func (b FetchBatch) Holding(ticker string) (PriceQuote, bool) {
	q, ok := b.holdings[ticker]
	return q, ok
}

func (b FetchBatch) Benchmark(key string) (PriceQuote, bool) {
	q, ok := b.benchmarks[key]
	return q, ok
}

// Len is the number of quotes in the batch.
func (b FetchBatch) Len() int { return len(b.holdings) + len(b.benchmarks) }
