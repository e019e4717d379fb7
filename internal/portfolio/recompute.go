package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Recompute produces the next snapshot for evalDate from prev and one fetch
// batch. prev is never modified; on error no snapshot is returned.
//
// Holding and benchmark returns are measured against the close recorded for
// prev's current_date (weekly) and the inception reference (total). Closes and
// percentages are stored rounded to 2 places, values to whole units.
func Recompute(prev *Snapshot, batch FetchBatch, evalDate string) (*Snapshot, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if !isDate(evalDate) {
		return nil, fmt.Errorf("evaluation date %q is not YYYY-MM-DD", evalDate)
	}
	if err := CheckEvalDate(prev, evalDate); err != nil {
		return nil, err
	}
	if len(prev.PortfolioHistory) == 0 {
		return nil, fmt.Errorf("%w: empty portfolio_history", ErrInvalidSnapshot)
	}

	next := prev.Clone()
	prevDate := prev.Meta.CurrentDate
	inceptionDate := prev.Meta.InceptionDate

	total := decimal.Zero
	for i := range next.Holdings {
		h := &next.Holdings[i]
		q, ok := batch.Holding(h.Ticker)
		if !ok {
			return nil, fmt.Errorf("%w for holding %s", ErrMissingQuote, h.Ticker)
		}
		if _, exists := h.Prices[evalDate]; exists {
			return nil, fmt.Errorf("%w: %s already priced on %s", ErrHistoryConflict, h.Ticker, evalDate)
		}
		inception, ok := h.InceptionPrice(inceptionDate)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no inception price", ErrInvalidSnapshot, h.Ticker)
		}
		prior, ok := h.Prices[prevDate]
		if !ok || prior <= 0 {
			return nil, fmt.Errorf("%w: %s has no price for %s", ErrInvalidSnapshot, h.Ticker, prevDate)
		}

		px := q.Close
		h.PriceSource = q.Source
		h.PriceStatus = ""
		if q.Stale {
			px = prior
			h.PriceStatus = PriceStatusStale
		}

		c := dec(px)
		value := dec(h.Shares).Mul(c).Round(0)
		h.Prices[evalDate] = round(c, 2)
		h.CurrentValue = round(value, 0)
		h.WeeklyPct = round(pctChange(c, dec(prior)), 2)
		h.TotalPct = round(pctChange(c, dec(inception)), 2)
		total = total.Add(value)
	}

	prevValue := dec(prev.PortfolioHistory[len(prev.PortfolioHistory)-1].Value)
	inceptionValue := dec(prev.Meta.InceptionValue)
	weekly := round(pctChange(total, prevValue), 2)
	totalPct := round(pctChange(total, inceptionValue), 2)

	next.PortfolioTotals = Totals{
		CurrentValue: round(total, 0),
		WeeklyPct:    weekly,
		TotalPct:     totalPct,
	}
	next.PortfolioHistory = append(next.PortfolioHistory, HistoryEntry{
		Date:      evalDate,
		Value:     round(total, 0),
		WeeklyPct: weekly,
		TotalPct:  totalPct,
	})

	chart := NormalizedEntry{
		Date:           evalDate,
		PortfolioValue: round(total, 0),
		GenAINorm:      round(norm(total, inceptionValue), 2),
		Closes:         map[string]float64{},
		Norms:          map[string]float64{},
	}

	for _, key := range prev.BenchmarkKeys() {
		series := next.Benchmarks[key]
		q, ok := batch.Benchmark(key)
		if !ok {
			return nil, fmt.Errorf("%w for benchmark %s", ErrMissingQuote, key)
		}
		if len(series.History) == 0 {
			return nil, fmt.Errorf("%w: benchmark %s has no history", ErrInvalidSnapshot, key)
		}
		last := series.History[len(series.History)-1]
		if last.Date >= evalDate {
			return nil, fmt.Errorf("%w: benchmark %s already has %s", ErrHistoryConflict, key, last.Date)
		}

		entry := BenchmarkEntry{Date: evalDate, Source: q.Source}
		px := q.Close
		if q.Stale {
			px = last.Close
			entry.PriceStatus = PriceStatusStale
		}
		c := dec(px)
		ref := dec(series.InceptionReference)
		entry.Close = round(c, 2)
		entry.WeeklyPct = round(pctChange(c, dec(last.Close)), 2)
		entry.TotalPct = round(pctChange(c, ref), 2)
		series.History = append(series.History, entry)
		next.Benchmarks[key] = series

		// norms use the stored (rounded) close
		ck := next.ChartKey(key)
		chart.Closes[ck] = entry.Close
		chart.Norms[ck] = round(norm(dec(entry.Close), ref), 2)
	}
	next.NormalizedChart = append(next.NormalizedChart, chart)
	next.Meta.CurrentDate = evalDate

	return next, nil
}

// CheckEvalDate rejects an evaluation date that would duplicate or precede the
// snapshot's current period.
func CheckEvalDate(s *Snapshot, evalDate string) error {
	switch cur := s.Meta.CurrentDate; {
	case evalDate == cur:
		return fmt.Errorf("%w: %s", ErrDuplicatePeriod, evalDate)
	case evalDate < cur:
		return fmt.Errorf("%w: %s < %s", ErrOutOfOrder, evalDate, cur)
	}
	return nil
}
