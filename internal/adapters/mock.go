package adapters

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// MockResponse is one scripted outcome of a MockProvider call.
type MockResponse struct {
	Date  string
	Close float64
	Err   error
}

// MockProvider returns deterministic quotes for tests and offline dry runs.
// Scripted responses are consumed in order; once a symbol's script is empty the
// static quote table is used, and unknown symbols come back unavailable.
type MockProvider struct {
	mu     sync.Mutex
	name   string
	quotes map[string]MockResponse
	script map[string][]MockResponse
	calls  map[string]int
}

// NewMockProvider creates an empty mock named name.
func NewMockProvider(name string) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{
		name:   name,
		quotes: make(map[string]MockResponse),
		script: make(map[string][]MockResponse),
		calls:  make(map[string]int),
	}
}

type mockFixture struct {
	Quotes map[string]struct {
		Date  string  `yaml:"date"`
		Close float64 `yaml:"close"`
	} `yaml:"quotes"`
}

// LoadMockProvider builds a mock from a YAML fixture:
//
//	quotes:
//	  AAPL: {date: 2025-06-08, close: 198.00}
func LoadMockProvider(name, path string) (*MockProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mock fixture: %w", err)
	}
	var fx mockFixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return nil, fmt.Errorf("parse mock fixture %s: %w", path, err)
	}
	m := NewMockProvider(name)
	for symbol, q := range fx.Quotes {
		m.SetQuote(symbol, q.Date, q.Close)
	}
	return m, nil
}

func (m *MockProvider) Name() string { return m.name }

// Fetch implements Provider.
func (m *MockProvider) Fetch(ctx context.Context, symbol string, _ AssetClass) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	m.mu.Lock()
	m.calls[symbol]++
	resp, ok := m.next(symbol)
	m.mu.Unlock()

	if !ok {
		return Quote{}, NewUnavailableError(m.name, symbol, "symbol not found in mock data")
	}
	if resp.Err != nil {
		return Quote{}, resp.Err
	}
	date, fallback := tradeDate(m.name, symbol, resp.Date)
	q, err := NewQuote(symbol, date, resp.Close, m.name)
	if err != nil {
		return Quote{}, err
	}
	q.DateFallback = fallback
	return q, nil
}

func (m *MockProvider) next(symbol string) (MockResponse, bool) {
	if queue := m.script[symbol]; len(queue) > 0 {
		m.script[symbol] = queue[1:]
		return queue[0], true
	}
	resp, ok := m.quotes[symbol]
	return resp, ok
}

// SetQuote sets the static answer for symbol.
func (m *MockProvider) SetQuote(symbol, date string, close float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[strings.ToUpper(symbol)] = MockResponse{Date: date, Close: close}
}

// SetError makes every unscripted call for symbol fail with err.
func (m *MockProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[strings.ToUpper(symbol)] = MockResponse{Err: err}
}

// Script queues responses for symbol ahead of the static table.
func (m *MockProvider) Script(symbol string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	m.script[symbol] = append(m.script[symbol], responses...)
}

// Calls returns the total number of Fetch calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// CallsFor returns the number of Fetch calls for symbol.
func (m *MockProvider) CallsFor(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToUpper(symbol)]
}
