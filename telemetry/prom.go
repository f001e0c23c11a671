package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on top of a prometheus.Registerer.
// Counters, histograms, and gauges are created lazily on first use and keyed
// by metric name plus the sorted label keys, mirroring the ad-hoc
// label-vector pattern C360Studio-semspec uses for its own NATS/registry
// metrics.
type PrometheusMetrics struct {
	reg        prometheus.Registerer
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics constructs a Metrics backed by the given registerer.
// Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func labelPairs(labels []string) ([]string, []string) {
	keys := make([]string, 0, len(labels)/2)
	vals := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		keys = append(keys, labels[i])
		vals = append(vals, labels[i+1])
	}
	return keys, vals
}

func metricName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

func (m *PrometheusMetrics) IncCounter(name string, value float64, labels ...string) {
	keys, vals := labelPairs(labels)
	m.mu.Lock()
	cv, ok := m.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: metricName(name)}, keys)
		m.reg.MustRegister(cv)
		m.counters[name] = cv
	}
	m.mu.Unlock()
	cv.WithLabelValues(vals...).Add(value)
}

func (m *PrometheusMetrics) RecordTimer(name string, d time.Duration, labels ...string) {
	keys, vals := labelPairs(labels)
	m.mu.Lock()
	hv, ok := m.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: metricName(name)}, keys)
		m.reg.MustRegister(hv)
		m.histograms[name] = hv
	}
	m.mu.Unlock()
	hv.WithLabelValues(vals...).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels ...string) {
	keys, vals := labelPairs(labels)
	m.mu.Lock()
	gv, ok := m.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: metricName(name)}, keys)
		m.reg.MustRegister(gv)
		m.gauges[name] = gv
	}
	m.mu.Unlock()
	gv.WithLabelValues(vals...).Set(value)
}
