package cassandracache

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"

	"github.com/gocql/gocql"
	"github.com/goforj/nscache/cachecore"
)

const (
	metricPrefix  = "nscache.cassandra_cql."
	retryMetric   = metricPrefix + "retry"
	clusterPrefix = metricPrefix + "cluster."
	latencyMetric = clusterPrefix + "query_latency"
)

var (
	_ gocql.QueryObserver   = (*clusterMetrics)(nil)
	_ gocql.ConnectObserver = (*clusterMetrics)(nil)
	_ gocql.HostFilter      = (*clusterMetrics)(nil)
)

// clusterMetrics reports per-query response counters and latency, and on a
// random sample of queries the cluster gauges. It hooks into gocql as a
// query observer, connect observer and pass-through host filter.
//
// gocql does not expose pool state, so the gauges are tracked from events:
// hosts are counted as they are discovered, a successful connect adds a
// connection, a query failing with a closed connection removes one and a
// failed connect drops every connection of that host.
type clusterMetrics struct {
	sink  cachecore.MetricsSink
	log   cachecore.Logger
	lucky func() bool

	mu        sync.Mutex
	known     map[string]struct{}
	connected map[string]int
}

func newClusterMetrics(cfg Config) *clusterMetrics {
	n := cfg.MetricsSampleRate
	return &clusterMetrics{
		sink:      cfg.Metrics,
		log:       cfg.Logger,
		lucky:     func() bool { return rand.Float64() < 1/float64(n) },
		known:     make(map[string]struct{}),
		connected: make(map[string]int),
	}
}

// Accept records every host gocql learns about. It never filters.
func (m *clusterMetrics) Accept(h *gocql.HostInfo) bool {
	m.addHost(hostKey(h))
	return true
}

func (m *clusterMetrics) ObserveConnect(c gocql.ObservedConnect) {
	key := hostKey(c.Host)
	if c.Err != nil {
		m.response("connection_error")
		m.dropHostConnections(key)
		return
	}
	m.addConnection(key)
}

func (m *clusterMetrics) ObserveQuery(_ context.Context, q gocql.ObservedQuery) {
	if errors.Is(q.Err, gocql.ErrConnectionClosed) {
		m.dropConnection(hostKey(q.Host))
	}
	m.observe(q.End.Sub(q.Start).Seconds(), q.Attempt, q.Err)
}

func (m *clusterMetrics) observe(latency float64, attempt int, err error) {
	if attempt > 0 {
		m.response("retry")
	}
	if err != nil {
		m.response(responseStatus(err))
	}
	m.submitGauges()
	if serr := m.sink.Distribution(latencyMetric, latency); serr != nil {
		m.log.Debug("cassandra: dropping query latency sample", cachecore.Fields{"error": serr})
	}
}

func (m *clusterMetrics) response(status string) {
	if err := m.sink.Increment(clusterPrefix + "response." + status); err != nil {
		m.log.Debug("cassandra: dropping response counter", cachecore.Fields{"status": status, "error": err})
	}
}

func (m *clusterMetrics) submitGauges() {
	if !m.lucky() {
		return
	}
	known, connected, open := m.stats()
	for name, v := range map[string]int{
		"num_known_hosts":      known,
		"num_connected_hosts":  connected,
		"num_open_connections": open,
	} {
		if err := m.sink.Gauge(clusterPrefix+name, float64(v)); err != nil {
			m.log.Debug("cassandra: dropping cluster gauge", cachecore.Fields{"gauge": name, "error": err})
		}
	}
}

func (m *clusterMetrics) addHost(key string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	m.known[key] = struct{}{}
	m.mu.Unlock()
}

func (m *clusterMetrics) addConnection(key string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	m.known[key] = struct{}{}
	m.connected[key]++
	m.mu.Unlock()
}

func (m *clusterMetrics) dropConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.connected[key]; ok {
		if n <= 1 {
			delete(m.connected, key)
		} else {
			m.connected[key] = n - 1
		}
	}
}

func (m *clusterMetrics) dropHostConnections(key string) {
	m.mu.Lock()
	delete(m.connected, key)
	m.mu.Unlock()
}

func (m *clusterMetrics) stats() (known, connected, open int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.connected {
		open += n
	}
	return len(m.known), len(m.connected), open
}

func responseStatus(err error) string {
	var (
		readTimeout  *gocql.RequestErrReadTimeout
		writeTimeout *gocql.RequestErrWriteTimeout
		unavailable  *gocql.RequestErrUnavailable
		netErr       net.Error
	)
	switch {
	case errors.As(err, &readTimeout):
		return "read_timeout"
	case errors.As(err, &writeTimeout):
		return "write_timeout"
	case errors.As(err, &unavailable):
		return "unavailable"
	case errors.Is(err, gocql.ErrNoConnections), errors.Is(err, gocql.ErrConnectionClosed),
		errors.Is(err, gocql.ErrTimeoutNoResponse):
		return "connection_error"
	case errors.As(err, &netErr) && !errors.Is(err, context.DeadlineExceeded):
		return "connection_error"
	}
	return "other_error"
}

func hostKey(h *gocql.HostInfo) string {
	if h == nil {
		return ""
	}
	if id := h.HostID(); id != "" {
		return id
	}
	return h.String()
}
