// Package bigcachecache provides an in-process cachecore.Backend on top of
// allegro/bigcache. bigcache only knows a cache-wide life window, so each
// value carries an 8-byte expiry header (unix milliseconds, 0 = never).
package bigcachecache

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/goforj/nscache/cachecore"
)

const (
	headerSize                = 8
	defaultShards             = 64
	defaultMaxEntriesInWindow = 10000
	defaultMaxEntrySize       = 256
	// noEviction stands in for an unbounded life window.
	noEviction = 100 * 365 * 24 * time.Hour
)

// Config configures the bigcache instance. A zero LifeWindow disables the
// cache-wide eviction; per-entry TTL still applies.
type Config struct {
	cachecore.BaseConfig
	Shards             int
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int
}

type store struct {
	c          *bc.BigCache
	defaultTTL time.Duration
	now        func() time.Time
}

// New builds a bigcache-backed cachecore.Backend.
func New(cfg Config) (cachecore.Backend, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = noEviction
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	conf.Shards = defaultShards
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	conf.CleanWindow = cfg.CleanWindow
	conf.MaxEntriesInWindow = defaultMaxEntriesInWindow
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	conf.MaxEntrySize = defaultMaxEntrySize
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &store{c: c, defaultTTL: cfg.DefaultTTL, now: time.Now}, nil
}

func (s *store) Driver() cachecore.Driver { return cachecore.DriverBigcache }

func (s *store) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *store) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, live := s.unwrap(raw)
	if !live {
		_ = s.c.Delete(key)
		return nil, false, nil
	}
	return append([]byte{}, value...), true, nil
}

func (s *store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	body := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(body[:headerSize], uint64(expiresAt))
	copy(body[headerSize:], value)
	return s.c.Set(key, body)
}

func (s *store) Delete(_ context.Context, key string) error {
	err := s.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (s *store) Clear(_ context.Context) error {
	return s.c.Reset()
}

// Keys iterates every shard; entries that vanish mid-iteration or have
// expired are skipped.
func (s *store) Keys(_ context.Context) ([]string, error) {
	var out []string
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if _, live := s.unwrap(info.Value()); live {
			out = append(out, info.Key())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close stops the cleanup goroutine.
func (s *store) Close() error {
	return s.c.Close()
}

func (s *store) unwrap(raw []byte) ([]byte, bool) {
	if len(raw) < headerSize {
		return nil, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(raw[:headerSize]))
	if expiresAt > 0 && s.now().UnixMilli() > expiresAt {
		return nil, false
	}
	return raw[headerSize:], true
}
