package engine

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/weekly-portfolio/internal/adapters"
)

// ReportEntry is one line of the fetch report. DateFallback marks a quote whose
// provider date was unusable and replaced by the latest market date.
type ReportEntry struct {
	Label        string              `json:"label"`
	Symbol       string              `json:"symbol"`
	Class        adapters.AssetClass `json:"class"`
	Price        float64             `json:"price,omitempty"`
	Display      string              `json:"display,omitempty"`
	Date         string              `json:"date,omitempty"`
	DateFallback bool                `json:"date_fallback,omitempty"`
	Provider     string              `json:"provider,omitempty"`
	Stale        bool                `json:"stale,omitempty"`
	Attempts     []adapters.Attempt  `json:"attempts"`
}

func NewReportEntry(t Target, q adapters.Quote, attempts []adapters.Attempt) ReportEntry {
	return ReportEntry{
		Label:        t.Label,
		Symbol:       q.Symbol,
		Class:        t.Class,
		Price:        q.Close,
		Display:      FormatUSD(q.Close),
		Date:         q.Date,
		DateFallback: q.DateFallback,
		Provider:     q.Provider,
		Attempts:     attempts,
	}
}

func StaleReportEntry(t Target, attempts []adapters.Attempt) ReportEntry {
	return ReportEntry{
		Label:    t.Label,
		Symbol:   t.Symbol,
		Class:    t.Class,
		Stale:    true,
		Attempts: attempts,
	}
}

// FormatUSD renders v as "$1,234.57", rounding half away from zero to cents.
func FormatUSD(v float64) string {
	cents := decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
	return money.New(cents, "USD").Display()
}
