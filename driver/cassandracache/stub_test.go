package cassandracache

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/gocql/gocql"
	"github.com/goforj/nscache/cachecore"
)

// fakeSession is an in-memory stand-in for a CQL session. It recognises
// the statements built by newStatements by their leading words.
type fakeSession struct {
	mu     sync.Mutex
	rows   map[string][]byte
	ttls   map[string]int
	calls  map[string]int
	stmts  []string
	closed bool

	forceCount *int64
	duplicate  bool
	// fail, when set, may inject an error before a statement runs.
	fail func(verb string, call int) error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		rows:  make(map[string][]byte),
		ttls:  make(map[string]int),
		calls: make(map[string]int),
	}
}

func verbOf(stmt string) string {
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE"):
		return "create"
	case strings.HasPrefix(stmt, "SELECT COUNT"):
		return "count"
	case strings.HasPrefix(stmt, "SELECT data"):
		return "get"
	case strings.HasPrefix(stmt, "INSERT") && strings.Contains(stmt, "USING TTL"):
		return "set_ttl"
	case strings.HasPrefix(stmt, "INSERT"):
		return "set"
	case strings.HasPrefix(stmt, "DELETE"):
		return "delete"
	case strings.HasPrefix(stmt, "TRUNCATE"):
		return "truncate"
	}
	return "unknown"
}

func (f *fakeSession) begin(stmt string) (string, error) {
	verb := verbOf(stmt)
	f.stmts = append(f.stmts, stmt)
	f.calls[verb]++
	if f.fail != nil {
		if err := f.fail(verb, f.calls[verb]); err != nil {
			return verb, err
		}
	}
	return verb, nil
}

func (f *fakeSession) Exec(_ context.Context, stmt string, values ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	verb, err := f.begin(stmt)
	if err != nil {
		return err
	}
	switch verb {
	case "set":
		f.rows[values[0].(string)] = append([]byte(nil), values[1].([]byte)...)
		delete(f.ttls, values[0].(string))
	case "set_ttl":
		f.rows[values[0].(string)] = append([]byte(nil), values[1].([]byte)...)
		f.ttls[values[0].(string)] = values[2].(int)
	case "delete":
		delete(f.rows, values[0].(string))
		delete(f.ttls, values[0].(string))
	case "truncate":
		f.rows = make(map[string][]byte)
		f.ttls = make(map[string]int)
	}
	return nil
}

func (f *fakeSession) Count(_ context.Context, stmt string, values ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.begin(stmt); err != nil {
		return 0, err
	}
	if f.forceCount != nil {
		return *f.forceCount, nil
	}
	if _, ok := f.rows[values[0].(string)]; ok {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeSession) Blobs(_ context.Context, stmt string, values ...any) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.begin(stmt); err != nil {
		return nil, err
	}
	v, ok := f.rows[values[0].(string)]
	if !ok {
		return nil, nil
	}
	out := [][]byte{append([]byte(nil), v...)}
	if f.duplicate {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSession) callCount(verb string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[verb]
}

type sample struct {
	name  string
	value float64
	tags  []string
}

type recordingSink struct {
	mu     sync.Mutex
	incs   []sample
	gauges []sample
	dists  []sample
	err    error
}

func (r *recordingSink) Increment(name string, tags ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incs = append(r.incs, sample{name: name, value: 1, tags: tags})
	return r.err
}

func (r *recordingSink) Gauge(name string, v float64, tags ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, sample{name: name, value: v, tags: tags})
	return r.err
}

func (r *recordingSink) Distribution(name string, v float64, tags ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dists = append(r.dists, sample{name: name, value: v, tags: tags})
	return r.err
}

func (r *recordingSink) counters(name string) []sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sample
	for _, s := range r.incs {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}

type recordingLogger struct {
	cachecore.NopLogger
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ cachecore.Fields) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

type fakeResolver struct {
	addrs map[string][]string
	err   error
}

func (r fakeResolver) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	if network != "ip4" {
		return nil, errors.New("unexpected network " + network)
	}
	if r.err != nil {
		return nil, r.err
	}
	raw, ok := r.addrs[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IP, 0, len(raw))
	for _, a := range raw {
		out = append(out, net.ParseIP(a))
	}
	return out, nil
}

type fakeQuery struct {
	attempts int
	cons     gocql.Consistency
}

func (q *fakeQuery) Attempts() int                      { return q.attempts }
func (q *fakeQuery) SetConsistency(c gocql.Consistency) { q.cons = c }
func (q *fakeQuery) GetConsistency() gocql.Consistency  { return q.cons }
func (q *fakeQuery) Context() context.Context           { return context.Background() }

// newTestStore wires a store over a fake session with no network access.
func newTestStore(t *testing.T, cfg Config) (*Store, *fakeSession, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	if cfg.Keyspace == "" {
		cfg.Keyspace = "sessions"
	}
	if cfg.URL == "" {
		cfg.URL = "127.0.0.1:9042"
	}
	cfg.Metrics = sink
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	sess := newFakeSession()
	s, err := newStore(context.Background(), cfg, sess)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	return s, sess, sink
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
