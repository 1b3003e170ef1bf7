package rediscache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goforj/nscache/cachecore"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "beaker"
	scanBatch     = 200
)

var errNoClient = errors.New("redis cache client unavailable")

// Client captures the subset of redis.Client used by the store.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Config configures a Redis-backed store.
type Config struct {
	cachecore.BaseConfig
	Client Client
	// Driver tags the backend; DriverRedis when empty, DriverDynomite for
	// Dynomite clusters.
	Driver cachecore.Driver
}

type store struct {
	client     Client
	defaultTTL time.Duration
	prefix     string
	driver     cachecore.Driver
}

// New builds a Redis-backed cachecore.Backend.
//
// Defaults:
// - DefaultTTL: zero means keys without a ttl never expire
// - Prefix: "beaker" when empty
// - Client: nil allowed (operations return errors until a client is provided)
func New(cfg Config) cachecore.Backend {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	driver := cfg.Driver
	if driver == "" {
		driver = cachecore.DriverRedis
	}
	return &store{
		client:     cfg.Client,
		defaultTTL: cfg.DefaultTTL,
		prefix:     prefix,
		driver:     driver,
	}
}

func (s *store) Driver() cachecore.Driver {
	return s.driver
}

func (s *store) Contains(ctx context.Context, key string) (bool, error) {
	if s.client == nil {
		return false, errNoClient
	}
	n, err := s.client.Exists(ctx, s.cacheKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errNoClient
	}
	value, err := s.client.Get(ctx, s.cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil {
		return errNoClient
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, s.cacheKey(key), value, ttl).Err()
}

func (s *store) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return errNoClient
	}
	return s.client.Del(ctx, s.cacheKey(key)).Err()
}

// Clear deletes every key under the prefix. Keys outside the prefix are
// left alone, so a shared database is safe.
func (s *store) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		return s.client.Del(ctx, keys...).Err()
	})
}

func (s *store) Keys(ctx context.Context) ([]string, error) {
	var out []string
	err := s.scan(ctx, func(keys []string) error {
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix+":"))
		}
		return nil
	})
	return out, err
}

func (s *store) scan(ctx context.Context, fn func([]string) error) error {
	if s.client == nil {
		return errNoClient
	}
	pattern := s.cacheKey("*")
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *store) cacheKey(key string) string {
	return s.prefix + ":" + key
}
