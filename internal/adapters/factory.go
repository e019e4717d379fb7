package adapters

import (
	"fmt"
	"strings"

	"github.com/Rajchodisetti/weekly-portfolio/internal/config"
	"github.com/Rajchodisetti/weekly-portfolio/internal/observ"
)

// NewProvider creates the adapter for one configured provider. Names starting with
// "mock" build a MockProvider, from p.FixturePath when set.
func NewProvider(name string, p config.Provider) (Provider, error) {
	switch {
	case name == config.ProviderAlphaVantage:
		return NewAlphaVantageAdapter(AlphaVantageConfig{
			APIKey:         p.APIKey,
			BaseURL:        p.BaseURL,
			TimeoutSeconds: p.TimeoutSeconds,
		})
	case name == config.ProviderFinnhub:
		return NewFinnhubAdapter(FinnhubConfig{
			APIKey:         p.APIKey,
			BaseURL:        p.BaseURL,
			TimeoutSeconds: p.TimeoutSeconds,
		})
	case name == config.ProviderMarketstack:
		return NewMarketstackAdapter(MarketstackConfig{
			APIKey:         p.APIKey,
			BaseURL:        p.BaseURL,
			TimeoutSeconds: p.TimeoutSeconds,
		})
	case strings.HasPrefix(name, config.ProviderMock):
		if p.FixturePath == "" {
			return NewMockProvider(name), nil
		}
		return LoadMockProvider(name, p.FixturePath)
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// BuildProviders creates every enabled provider referenced by a chain.
func BuildProviders(cfg config.Root) (map[string]Provider, error) {
	providers := make(map[string]Provider)
	for _, name := range cfg.ChainedProviders() {
		pc, ok := cfg.Providers[name]
		if !ok {
			return nil, fmt.Errorf("chained provider %q is not configured", name)
		}
		p, err := NewProvider(name, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		providers[name] = p
		observ.Debug("provider_created", map[string]any{
			"provider":         name,
			"min_interval_sec": pc.MinIntervalSeconds,
			"timeout_sec":      pc.TimeoutSeconds,
		})
	}
	return providers, nil
}
