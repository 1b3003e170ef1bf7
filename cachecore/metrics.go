package cachecore

// MetricsSink receives counters, gauges and distributions. Tags use the
// "name:value" form. Implementations report submission problems through
// the returned error; callers log and drop them.
type MetricsSink interface {
	Increment(name string, tags ...string) error
	Gauge(name string, value float64, tags ...string) error
	Distribution(name string, value float64, tags ...string) error
}

// NopMetrics discards all samples.
type NopMetrics struct{}

func (NopMetrics) Increment(string, ...string) error             { return nil }
func (NopMetrics) Gauge(string, float64, ...string) error        { return nil }
func (NopMetrics) Distribution(string, float64, ...string) error { return nil }
