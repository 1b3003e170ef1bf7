// Package metrics provides cachecore.MetricsSink implementations.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goforj/nscache/cachecore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ cachecore.MetricsSink = (*Prometheus)(nil)

// ErrLabelMismatch is returned when a metric is reported with a different
// tag set than the one it was first registered with.
var ErrLabelMismatch = errors.New("metrics: label set changed for metric")

// Prometheus maps dotted metric names and "key:value" tags onto lazily
// registered Prometheus vectors. Counters become CounterVecs, gauges
// GaugeVecs and distributions HistogramVecs.
type Prometheus struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	buckets  []float64
	vecs     map[string]*vecEntry
}

type vecEntry struct {
	kind   string
	labels []string
	vec    prometheus.Collector
}

// NewPrometheus builds a sink on reg. A nil reg creates a private registry.
// buckets applies to distributions; nil means prometheus.DefBuckets.
func NewPrometheus(reg *prometheus.Registry, buckets []float64) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return &Prometheus{registry: reg, buckets: buckets, vecs: make(map[string]*vecEntry)}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *Prometheus) Increment(name string, tags ...string) error {
	labels, values := splitTags(tags)
	c, err := p.vec(name, "counter", labels)
	if err != nil {
		return err
	}
	m, err := c.(*prometheus.CounterVec).GetMetricWithLabelValues(values...)
	if err != nil {
		return err
	}
	m.Inc()
	return nil
}

func (p *Prometheus) Gauge(name string, value float64, tags ...string) error {
	labels, values := splitTags(tags)
	c, err := p.vec(name, "gauge", labels)
	if err != nil {
		return err
	}
	m, err := c.(*prometheus.GaugeVec).GetMetricWithLabelValues(values...)
	if err != nil {
		return err
	}
	m.Set(value)
	return nil
}

func (p *Prometheus) Distribution(name string, value float64, tags ...string) error {
	labels, values := splitTags(tags)
	c, err := p.vec(name, "histogram", labels)
	if err != nil {
		return err
	}
	m, err := c.(*prometheus.HistogramVec).GetMetricWithLabelValues(values...)
	if err != nil {
		return err
	}
	m.Observe(value)
	return nil
}

func (p *Prometheus) vec(name, kind string, labels []string) (prometheus.Collector, error) {
	metric := metricName(name)
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.vecs[metric]; ok {
		if e.kind != kind || !equalLabels(e.labels, labels) {
			return nil, fmt.Errorf("%w: %s", ErrLabelMismatch, metric)
		}
		return e.vec, nil
	}

	var c prometheus.Collector
	help := "nscache " + kind + " " + name
	switch kind {
	case "counter":
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: metric, Help: help}, labels)
	case "gauge":
		c = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: metric, Help: help}, labels)
	default:
		c = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: metric, Help: help, Buckets: p.buckets}, labels)
	}
	if err := p.registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register %s: %w", metric, err)
		}
		c = are.ExistingCollector
	}
	p.vecs[metric] = &vecEntry{kind: kind, labels: labels, vec: c}
	return c, nil
}

// splitTags turns "k:v" tags into label names and values ordered by name.
// A tag without a colon becomes a label with value "true".
func splitTags(tags []string) ([]string, []string) {
	pairs := make([][2]string, 0, len(tags))
	for _, t := range tags {
		k, v, ok := strings.Cut(t, ":")
		if !ok {
			v = "true"
		}
		pairs = append(pairs, [2]string{metricName(k), v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	labels := make([]string, len(pairs))
	values := make([]string, len(pairs))
	for i, kv := range pairs {
		labels[i], values[i] = kv[0], kv[1]
	}
	return labels, values
}

func metricName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func equalLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
