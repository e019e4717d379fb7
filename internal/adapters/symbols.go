package adapters

import "strings"

// SymbolMap translates canonical symbols into provider-specific ones. Quotes are
// always reported under the canonical symbol.
type SymbolMap struct {
	aliases map[string]map[string]string // canonical -> provider -> provider symbol
}

// NewSymbolMap builds a map from config of the form
//
//	symbols:
//	  "^SPX": {marketstack: "SPX.INDX"}
//	  "BRK.B": {finnhub: "BRK-B"}
func NewSymbolMap(aliases map[string]map[string]string) *SymbolMap {
	m := &SymbolMap{aliases: make(map[string]map[string]string, len(aliases))}
	for canonical, byProvider := range aliases {
		key := normalizeSymbol(canonical)
		if key == "" {
			continue
		}
		inner := make(map[string]string, len(byProvider))
		for provider, sym := range byProvider {
			if sym = strings.TrimSpace(sym); sym != "" {
				inner[provider] = sym
			}
		}
		m.aliases[key] = inner
	}
	return m
}

// ProviderSymbol returns the symbol to send to provider. Unmapped symbols pass
// through normalized.
func (m *SymbolMap) ProviderSymbol(provider, symbol string) string {
	symbol = normalizeSymbol(symbol)
	if m == nil {
		return symbol
	}
	if sym, ok := m.aliases[symbol][provider]; ok {
		return sym
	}
	return symbol
}

// Len is the number of canonical symbols with at least one alias.
func (m *SymbolMap) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, inner := range m.aliases {
		if len(inner) > 0 {
			n++
		}
	}
	return n
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
