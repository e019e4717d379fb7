package observ

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "weekly_portfolio"

type registry struct {
	mu       sync.Mutex
	prom     *prometheus.Registry
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	hist     map[string]*prometheus.HistogramVec
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		prom:     prometheus.NewRegistry(),
		counters: map[string]*prometheus.CounterVec{},
		gauges:   map[string]*prometheus.GaugeVec{},
		hist:     map[string]*prometheus.HistogramVec{},
	}
}

// ResetMetrics drops every collector. Tests use it to start from zero.
func ResetMetrics() {
	fresh := newRegistry()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.prom = fresh.prom
	reg.counters = fresh.counters
	reg.gauges = fresh.gauges
	reg.hist = fresh.hist
}

// Registry exposes the underlying gatherer for textfile export.
func Registry() prometheus.Gatherer {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.prom
}

// labelKeys returns the sorted label names so the vec schema is stable.
func labelKeys(lbl map[string]string) []string {
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func metricName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, name)
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	vec, ok := reg.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      metricName(name),
			Help:      name,
		}, labelKeys(labels))
		reg.prom.MustRegister(vec)
		reg.counters[name] = vec
	}
	reg.mu.Unlock()

	c, err := vec.GetMetricWith(labels)
	if err != nil {
		Debug("metric_label_mismatch", map[string]any{"metric": name, "error": err.Error()})
		return
	}
	c.Add(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	vec, ok := reg.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      metricName(name),
			Help:      name,
		}, labelKeys(labels))
		reg.prom.MustRegister(vec)
		reg.gauges[name] = vec
	}
	reg.mu.Unlock()

	g, err := vec.GetMetricWith(labels)
	if err != nil {
		Debug("metric_label_mismatch", map[string]any{"metric": name, "error": err.Error()})
		return
	}
	g.Set(value)
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	vec, ok := reg.hist[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      metricName(name),
			Help:      name,
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 12000, 30000, 60000},
		}, labelKeys(labels))
		reg.prom.MustRegister(vec)
		reg.hist[name] = vec
	}
	reg.mu.Unlock()

	h, err := vec.GetMetricWith(labels)
	if err != nil {
		Debug("metric_label_mismatch", map[string]any{"metric": name, "error": err.Error()})
		return
	}
	h.Observe(value)
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// CounterValue reads back a counter; unknown series read as zero.
func CounterValue(name string, labels map[string]string) float64 {
	reg.mu.Lock()
	vec, ok := reg.counters[name]
	reg.mu.Unlock()
	if !ok {
		return 0
	}
	c, err := vec.GetMetricWith(labels)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// WriteTextfile dumps all metrics in Prometheus text format for the node-exporter
// textfile collector. A one-shot run has no scrape endpoint.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry())
}
