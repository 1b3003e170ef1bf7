package nscache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string `json:"name" msgpack:"name" cbor:"name"`
	Level int    `json:"level" msgpack:"level" cbor:"level"`
}

type opEvent struct {
	op  string
	key string
	hit bool
	err error
}

type recordingObserver struct {
	mu     sync.Mutex
	events []opEvent
}

func (r *recordingObserver) OnOp(_ context.Context, op, key string, hit bool, err error, _ time.Duration, _ cachecore.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, opEvent{op: op, key: key, hit: hit, err: err})
}

type recordingSink struct {
	mu     sync.Mutex
	counts map[string][]string
	dists  map[string]int
	fail   error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: map[string][]string{}, dists: map[string]int{}}
}

func (s *recordingSink) Increment(name string, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] = append(s.counts[name], tags...)
	return s.fail
}

func (s *recordingSink) Gauge(string, float64, ...string) error { return s.fail }

func (s *recordingSink) Distribution(name string, _ float64, _ ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dists[name]++
	return s.fail
}

// failingBackend returns err from every operation.
type failingBackend struct{ err error }

func (failingBackend) Driver() cachecore.Driver { return cachecore.DriverRedis }
func (f failingBackend) Contains(context.Context, string) (bool, error) {
	return false, f.err
}
func (f failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, f.err
}
func (f failingBackend) Set(context.Context, string, []byte, time.Duration) error { return f.err }
func (f failingBackend) Delete(context.Context, string) error                     { return f.err }
func (f failingBackend) Clear(context.Context) error                              { return f.err }
func (f failingBackend) Keys(context.Context) ([]string, error)                   { return nil, f.err }

func TestFormatKeyReplacesSpaces(t *testing.T) {
	mgr := NewNamespaceManager("sessions", nullBackend{})
	assert.Equal(t, "sessions:user\xc2\xb742", mgr.FormatKey("user 42"))
	assert.Equal(t, "sessions:a·b·c", mgr.FormatKey("a b c"))
	assert.Equal(t, "sessions:", mgr.FormatKey(""))
}

func TestManagerRoundTrip(t *testing.T) {
	backend := newMemoryBackend(0, 0)
	mgr := NewNamespaceManager("sessions", backend)

	require.NoError(t, mgr.Set("user 42", []byte("ada"), 0))

	raw, ok, err := backend.Get(context.Background(), "sessions:user·42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ada", string(raw))

	has, err := mgr.Has("user 42")
	require.NoError(t, err)
	assert.True(t, has)

	body, ok, err := mgr.Get("user 42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ada", string(body))

	require.NoError(t, mgr.Delete("user 42"))
	require.NoError(t, mgr.Delete("user 42"))
	_, ok, err = mgr.Get("user 42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerKeysFiltersNamespace(t *testing.T) {
	backend := newMemoryBackend(0, 0)
	sessions := NewNamespaceManager("sessions", backend)
	other := NewNamespaceManager("sessions2", backend)

	require.NoError(t, sessions.Set("user 1", []byte("a"), 0))
	require.NoError(t, sessions.Set("token", []byte("b"), 0))
	require.NoError(t, other.Set("user 1", []byte("c"), 0))

	keys, err := sessions.Keys()
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"token", "user 1"}, keys)
}

func TestManagerKeysUnsupported(t *testing.T) {
	mgr := NewNamespaceManager("ns", failingBackend{err: cachecore.ErrNotImplemented})
	_, err := mgr.Keys()
	assert.True(t, errors.Is(err, cachecore.ErrNotImplemented))
}

func TestManagerClearEmptiesBackend(t *testing.T) {
	backend := newMemoryBackend(0, 0)
	a := NewNamespaceManager("a", backend)
	b := NewNamespaceManager("b", backend)
	require.NoError(t, a.Set("k", []byte("1"), 0))
	require.NoError(t, b.Set("k", []byte("2"), 0))

	require.NoError(t, a.Clear())
	has, err := b.Has("k")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestManagerTTLOverride(t *testing.T) {
	backend := newMemoryBackend(time.Hour, 0)
	mgr := NewNamespaceManager("ns", backend)
	require.NoError(t, mgr.Set("short", []byte("v"), 20*time.Millisecond))
	require.NoError(t, mgr.Set("long", []byte("v"), 0))
	time.Sleep(60 * time.Millisecond)

	has, err := mgr.Has("short")
	require.NoError(t, err)
	assert.False(t, has)
	has, err = mgr.Has("long")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestManagerValues(t *testing.T) {
	for _, s := range []codec.Serializer{codec.Msgpack{}, codec.JSON{}} {
		t.Run(s.Name(), func(t *testing.T) {
			mgr := NewNamespaceManager("profiles", newMemoryBackend(0, 0), WithSerializer(s))
			assert.Equal(t, s.Name(), mgr.Serializer().Name())

			require.NoError(t, mgr.SetValue("ada", profile{Name: "Ada", Level: 3}, 0))

			var out profile
			ok, err := mgr.GetValue("ada", &out)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, profile{Name: "Ada", Level: 3}, out)

			got, ok, err := GetAs[profile](mgr, "ada")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "Ada", got.Name)

			_, ok, err = GetAs[profile](mgr, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestManagerGetValueDecodeFailure(t *testing.T) {
	mgr := NewNamespaceManager("ns", newMemoryBackend(0, 0), WithSerializer(codec.JSON{}))
	require.NoError(t, mgr.Set("bad", []byte("{not json"), 0))

	var out profile
	ok, err := mgr.GetValue("bad", &out)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestManagerDefaultsToMsgpack(t *testing.T) {
	mgr := NewNamespaceManager("ns", nullBackend{})
	assert.Equal(t, "msgpack", mgr.Serializer().Name())
	assert.Equal(t, cachecore.DriverNull, mgr.Driver())
	assert.Equal(t, "ns", mgr.Namespace())
}

func TestManagerObserversReceiveEvents(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}
	mgr := NewNamespaceManager("ns", newMemoryBackend(0, 0), WithObserver(first), WithObserver(second), WithObserver(nil))

	require.NoError(t, mgr.Set("k", []byte("v"), 0))
	_, _, _ = mgr.Get("k")
	_, _, _ = mgr.Get("missing")
	_, _ = mgr.Has("k")
	_ = mgr.Delete("k")
	_, _ = mgr.Keys()
	_ = mgr.Clear()

	want := []opEvent{
		{op: "set", key: "k"},
		{op: "get", key: "k", hit: true},
		{op: "get", key: "missing"},
		{op: "has", key: "k", hit: true},
		{op: "delete", key: "k"},
		{op: "keys", hit: true},
		{op: "clear"},
	}
	assert.Equal(t, want, first.events)
	assert.Equal(t, want, second.events)
}

func TestManagerObserverSeesErrors(t *testing.T) {
	boom := errors.New("boom")
	obs := &recordingObserver{}
	mgr := NewNamespaceManager("ns", failingBackend{err: boom}, WithObserver(obs))

	err := mgr.Set("k", []byte("v"), 0)
	assert.ErrorIs(t, err, boom)
	require.Len(t, obs.events, 1)
	assert.ErrorIs(t, obs.events[0].err, boom)
}

func TestObserverFuncNilIsSafe(t *testing.T) {
	var f ObserverFunc
	f.OnOp(context.Background(), "get", "k", false, nil, 0, cachecore.DriverMemory)

	called := false
	ObserverFunc(func(context.Context, string, string, bool, error, time.Duration, cachecore.Driver) {
		called = true
	}).OnOp(context.Background(), "get", "k", false, nil, 0, cachecore.DriverMemory)
	assert.True(t, called)
}

func TestMetricsObserverTags(t *testing.T) {
	sink := newRecordingSink()
	mgr := NewNamespaceManager("ns", newMemoryBackend(0, 0), WithObserver(MetricsObserver{Sink: sink}))

	require.NoError(t, mgr.Set("k", []byte("v"), 0))
	_, _, _ = mgr.Get("k")

	tags := sink.counts["nscache.op"]
	assert.Contains(t, tags, "op:set")
	assert.Contains(t, tags, "op:get")
	assert.Contains(t, tags, "driver:memory")
	assert.Contains(t, tags, "result:hit")
	assert.Contains(t, tags, "status:ok")
	assert.Equal(t, 2, sink.dists["nscache.op_latency"])
}

func TestMetricsObserverNilSinkAndFailures(t *testing.T) {
	MetricsObserver{}.OnOp(context.Background(), "get", "k", false, nil, time.Millisecond, cachecore.DriverMemory)

	sink := newRecordingSink()
	sink.fail = errors.New("statsd down")
	obs := MetricsObserver{Sink: sink, Logger: cachecore.NopLogger{}}
	obs.OnOp(context.Background(), "get", "k", false, errors.New("x"), time.Millisecond, cachecore.DriverMemory)
	assert.Contains(t, sink.counts["nscache.op"], "status:error")
}
