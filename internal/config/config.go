package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type State struct {
	Path       string `yaml:"path"`        // canonical master.json
	ArchiveDir string `yaml:"archive_dir"` // master-YYYYMMDD.json backups
	LegacyDir  string `yaml:"legacy_dir"`  // <dir>/W<n>/master.json copies, empty disables
}

type Provider struct {
	Enabled            *bool   `yaml:"enabled"`
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	MinIntervalSeconds float64 `yaml:"min_interval_seconds"`
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
	FixturePath        string  `yaml:"fixture_path"` // mock provider only

	// APIKey is resolved from APIKeyEnv at load time, never read from YAML.
	APIKey string `yaml:"-"`
}

// IsEnabled treats a missing flag as enabled.
func (p Provider) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Retry and breaker fields are preset before decoding, so an explicit zero in
// YAML (max_retries: 0) is kept rather than replaced by the default.
type Retry struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
}

type Breaker struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	CooldownSeconds     int `yaml:"cooldown_seconds"`
}

type Benchmark struct {
	Symbol   string `yaml:"symbol"`
	Class    string `yaml:"class"`     // equity | crypto | index
	ChartKey string `yaml:"chart_key"` // prefix of <key>_close / <key>_norm in normalized_chart
}

type Logging struct {
	Level string `yaml:"level"`
}

type Metrics struct {
	TextfilePath string `yaml:"textfile_path"`
}

// Stale policies
const (
	StaleFail         = "fail"
	StaleCarryForward = "carry_forward"
)

// Provider names
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderFinnhub      = "finnhub"
	ProviderMarketstack  = "marketstack"
	ProviderMock         = "mock"
)

type Root struct {
	State       State                        `yaml:"state"`
	Providers   map[string]Provider          `yaml:"providers"`
	Retry       Retry                        `yaml:"retry"`
	Breaker     Breaker                      `yaml:"breaker"`
	Chains      map[string][]string          `yaml:"chains"`
	Benchmarks  map[string]Benchmark         `yaml:"benchmarks"`
	Symbols     map[string]map[string]string `yaml:"symbols"` // canonical -> provider -> alias
	StalePolicy string                       `yaml:"stale_policy"`
	Logging     Logging                      `yaml:"logging"`
	Metrics     Metrics                      `yaml:"metrics"`
}

// ErrMissingCredentials is returned when a chained provider has no API key.
var ErrMissingCredentials = errors.New("missing provider credentials")

// Load reads the YAML file at path, fills defaults and resolves credentials.
// A .env file next to the working directory is loaded first when present; real
// environment variables win over it.
func Load(path string) (Root, error) {
	c := Root{Retry: defaultRetry, Breaker: defaultBreaker}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := LoadDotEnv(); err != nil {
		return c, err
	}
	c.ApplyDefaults()
	c.ResolveCredentials(os.Getenv)
	return c, nil
}

// LoadDotEnv loads .env if it exists. godotenv never overrides variables that are
// already set.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() Root {
	c := Root{Retry: defaultRetry, Breaker: defaultBreaker}
	c.ApplyDefaults()
	return c
}

var (
	defaultRetry   = Retry{MaxRetries: 3, InitialDelayMs: 1000, BackoffFactor: 2, MaxDelayMs: 30000}
	defaultBreaker = Breaker{ConsecutiveFailures: 3, CooldownSeconds: 300}
)

// ApplyDefaults fills unset fields. Retry and breaker values are not touched
// here; Load and Default preset them.
func (c *Root) ApplyDefaults() {
	if c.State.Path == "" {
		c.State.Path = "master data/master.json"
	}
	if c.State.ArchiveDir == "" {
		c.State.ArchiveDir = "master data/archive"
	}

	if c.Providers == nil {
		c.Providers = map[string]Provider{}
	}
	defaults := map[string]Provider{
		ProviderAlphaVantage: {BaseURL: "https://www.alphavantage.co/query", APIKeyEnv: "ALPHAVANTAGE_API_KEY", MinIntervalSeconds: 12},
		ProviderFinnhub:      {BaseURL: "https://finnhub.io/api/v1", APIKeyEnv: "FINNHUB_API_KEY", MinIntervalSeconds: 12},
		ProviderMarketstack:  {BaseURL: "http://api.marketstack.com/v1", APIKeyEnv: "MARKETSTACK_API_KEY", MinIntervalSeconds: 2},
	}
	for name, def := range defaults {
		p, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = withTimeout(def)
			continue
		}
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = def.APIKeyEnv
		}
		if p.MinIntervalSeconds == 0 {
			p.MinIntervalSeconds = def.MinIntervalSeconds
		}
		c.Providers[name] = withTimeout(p)
	}
	for name, p := range c.Providers {
		c.Providers[name] = withTimeout(p)
	}

	if len(c.Chains) == 0 {
		c.Chains = map[string][]string{
			"equity": {ProviderAlphaVantage, ProviderFinnhub, ProviderMarketstack},
			"crypto": {ProviderAlphaVantage, ProviderFinnhub},
			"index":  {ProviderMarketstack},
		}
	}

	if len(c.Benchmarks) == 0 {
		c.Benchmarks = map[string]Benchmark{
			"sp500":   {Symbol: "^SPX", Class: "index", ChartKey: "spx"},
			"bitcoin": {Symbol: "BTC", Class: "crypto", ChartKey: "btc"},
		}
	}
	// ChartKey stays empty when unset; the snapshot resolves it (sp500 -> spx).
	for key, b := range c.Benchmarks {
		if b.Symbol == "" {
			b.Symbol = strings.ToUpper(key)
		}
		if b.Class == "" {
			b.Class = "equity"
		}
		c.Benchmarks[key] = b
	}

	if c.StalePolicy == "" {
		c.StalePolicy = StaleFail
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func withTimeout(p Provider) Provider {
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = 60
	}
	return p
}

// ResolveCredentials copies each provider's API key out of the environment.
func (c *Root) ResolveCredentials(getenv func(string) string) {
	for name, p := range c.Providers {
		if p.APIKeyEnv != "" {
			p.APIKey = strings.TrimSpace(getenv(p.APIKeyEnv))
		}
		c.Providers[name] = p
	}
}

// ChainedProviders lists every enabled provider referenced by a chain, sorted.
func (c Root) ChainedProviders() []string {
	seen := map[string]bool{}
	for _, chain := range c.Chains {
		for _, name := range chain {
			if p, ok := c.Providers[name]; ok && !p.IsEnabled() {
				continue
			}
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks structural consistency and that every chained provider can
// authenticate. It runs before any network call.
func (c Root) Validate() error {
	if c.State.Path == "" {
		return errors.New("state.path is required")
	}
	switch c.StalePolicy {
	case StaleFail, StaleCarryForward:
	default:
		return fmt.Errorf("unknown stale_policy %q", c.StalePolicy)
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BackoffFactor < 1 || c.Retry.InitialDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		return fmt.Errorf("invalid retry policy: max_retries=%d backoff_factor=%.2f",
			c.Retry.MaxRetries, c.Retry.BackoffFactor)
	}
	if c.Breaker.ConsecutiveFailures < 1 || c.Breaker.CooldownSeconds < 0 {
		return fmt.Errorf("invalid breaker: consecutive_failures=%d cooldown_seconds=%d",
			c.Breaker.ConsecutiveFailures, c.Breaker.CooldownSeconds)
	}
	for class, chain := range c.Chains {
		switch class {
		case "equity", "crypto", "index":
		default:
			return fmt.Errorf("unknown asset class %q in chains", class)
		}
		if len(chain) == 0 {
			return fmt.Errorf("chain %q has no providers", class)
		}
	}
	for key, b := range c.Benchmarks {
		if _, ok := c.Chains[b.Class]; !ok {
			return fmt.Errorf("benchmark %q uses class %q with no provider chain", key, b.Class)
		}
	}
	for _, name := range c.ChainedProviders() {
		p, ok := c.Providers[name]
		if !ok {
			return fmt.Errorf("chained provider %q is not configured", name)
		}
		if p.MinIntervalSeconds < 0 {
			return fmt.Errorf("provider %q: negative min_interval_seconds", name)
		}
		if strings.HasPrefix(name, ProviderMock) {
			continue
		}
		if p.APIKey == "" {
			return fmt.Errorf("%w: provider %s (set %s)", ErrMissingCredentials, name, p.APIKeyEnv)
		}
	}
	return nil
}
