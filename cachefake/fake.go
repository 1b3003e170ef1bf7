package cachefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/nscache"
	"github.com/goforj/nscache/cachecore"
)

// Op identifies a backend operation for assertions.
type Op string

const (
	OpHas    Op = "has"
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
	OpKeys   Op = "keys"
)

// Fake exposes a deterministic in-memory backend plus assertion helpers for tests.
// It wraps the memory backend so no external services are needed. Counts are
// recorded against the formatted backend key ("<namespace>:<key>").
type Fake struct {
	backend *countingBackend
	counts  map[Op]map[string]int
	mu      sync.Mutex
}

// New creates a Fake using an in-memory backend.
func New() *Fake {
	inner, err := nscache.NewBackend(context.Background(), cachecore.Params{"type": string(cachecore.DriverMemory)})
	if err != nil {
		panic(err)
	}
	f := &Fake{counts: make(map[Op]map[string]int)}
	f.backend = &countingBackend{inner: inner, onCount: f.record}
	return f
}

// Backend returns the counting backend to inject into code under test.
func (f *Fake) Backend() cachecore.Backend { return f.backend }

// Manager returns a namespace manager bound to the fake backend.
func (f *Fake) Manager(namespace string, opts ...nscache.ManagerOption) *nscache.NamespaceManager {
	return nscache.NewNamespaceManager(namespace, f.backend, opts...)
}

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingBackend wraps a Backend to record calls.
type countingBackend struct {
	inner   cachecore.Backend
	onCount func(Op, string)
}

func (s *countingBackend) Driver() cachecore.Driver { return s.inner.Driver() }

func (s *countingBackend) Contains(ctx context.Context, key string) (bool, error) {
	s.bump(OpHas, key)
	return s.inner.Contains(ctx, key)
}

func (s *countingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingBackend) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingBackend) Clear(ctx context.Context) error {
	s.bump(OpClear, "")
	return s.inner.Clear(ctx)
}

func (s *countingBackend) Keys(ctx context.Context) ([]string, error) {
	s.bump(OpKeys, "")
	return s.inner.Keys(ctx)
}

func (s *countingBackend) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}
