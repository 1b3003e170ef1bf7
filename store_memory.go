package nscache

import (
	"context"
	"sort"
	"time"

	"github.com/goforj/nscache/cachecore"
	gocache "github.com/patrickmn/go-cache"
)

const defaultMemoryCleanupInterval = 10 * time.Minute

// memoryBackend keeps values in a process-local go-cache instance.
type memoryBackend struct {
	cache      *gocache.Cache
	defaultTTL time.Duration
}

func newMemoryBackend(defaultTTL, cleanupInterval time.Duration) *memoryBackend {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultMemoryCleanupInterval
	}
	return &memoryBackend{
		cache:      gocache.New(gocache.NoExpiration, cleanupInterval),
		defaultTTL: defaultTTL,
	}
}

func (s *memoryBackend) Driver() cachecore.Driver { return cachecore.DriverMemory }

func (s *memoryBackend) Contains(_ context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(key)
	return ok, nil
}

func (s *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, nil
	}
	clone := make([]byte, len(body))
	copy(clone, body)
	return clone, true, nil
}

func (s *memoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	s.cache.Set(key, clone, ttl)
	return nil
}

func (s *memoryBackend) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *memoryBackend) Clear(_ context.Context) error {
	s.cache.Flush()
	return nil
}

func (s *memoryBackend) Keys(_ context.Context) ([]string, error) {
	items := s.cache.Items()
	out := make([]string, 0, len(items))
	for k := range items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
