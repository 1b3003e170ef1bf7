// Package ristrettocache provides an in-process cachecore.Backend on top of
// dgraph-io/ristretto. Entries may be evicted under cost pressure.
package ristrettocache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"
	"github.com/goforj/nscache/cachecore"
)

const (
	defaultNumCounters = 1e6
	defaultMaxCost     = 64 << 20
	defaultBufferItems = 64
)

// ErrRejected is returned when ristretto drops a write instead of admitting it.
var ErrRejected = errors.New("ristretto rejected the write")

// Config configures the ristretto cache. MaxCost is measured in value bytes.
type Config struct {
	cachecore.BaseConfig
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

type store struct {
	c          *rc.Cache
	defaultTTL time.Duration

	mu    sync.Mutex
	index map[string]struct{}
}

// New builds a ristretto-backed cachecore.Backend.
func New(cfg Config) (cachecore.Backend, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = defaultBufferItems
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &store{c: c, defaultTTL: cfg.DefaultTTL, index: map[string]struct{}{}}, nil
}

func (s *store) Driver() cachecore.Driver { return cachecore.DriverRistretto }

func (s *store) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		s.c.Del(key)
		return nil, false, nil
	}
	return append([]byte{}, b...), true, nil
}

// Set waits for the write buffer to drain so the value is visible to the
// next Get.
func (s *store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if !s.c.SetWithTTL(key, append([]byte{}, value...), int64(len(value))+1, ttl) {
		return ErrRejected
	}
	s.c.Wait()
	s.mu.Lock()
	s.index[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *store) Delete(_ context.Context, key string) error {
	s.c.Del(key)
	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()
	return nil
}

func (s *store) Clear(_ context.Context) error {
	s.c.Clear()
	s.mu.Lock()
	s.index = map[string]struct{}{}
	s.mu.Unlock()
	return nil
}

// Keys walks the write index and drops entries ristretto has since expired
// or evicted.
func (s *store) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.index))
	for k := range s.index {
		if _, ok := s.c.Get(k); !ok {
			delete(s.index, k)
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Close stops ristretto's background goroutines.
func (s *store) Close() error {
	s.c.Close()
	return nil
}
