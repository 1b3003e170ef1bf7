package nscache

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/driver/bigcachecache"
	"github.com/goforj/nscache/driver/cassandracache"
	"github.com/goforj/nscache/driver/dynamocache"
	"github.com/goforj/nscache/driver/memcachedcache"
	"github.com/goforj/nscache/driver/mysqlcache"
	"github.com/goforj/nscache/driver/natscache"
	"github.com/goforj/nscache/driver/postgrescache"
	"github.com/goforj/nscache/driver/rediscache"
	"github.com/goforj/nscache/driver/ristrettocache"
	"github.com/goforj/nscache/driver/sqlitecache"
	"github.com/redis/go-redis/v9"
)

const defaultNATSBucket = "beaker"

// backendConfig carries collaborators that cannot be expressed as params.
type backendConfig struct {
	logger  cachecore.Logger
	metrics cachecore.MetricsSink
}

// BackendOption mutates backendConfig when constructing a backend.
type BackendOption func(backendConfig) backendConfig

// WithBackendLogger sets the logger handed to drivers that log.
func WithBackendLogger(l cachecore.Logger) BackendOption {
	return func(cfg backendConfig) backendConfig {
		cfg.logger = l
		return cfg
	}
}

// WithBackendMetrics sets the metrics sink handed to drivers that report.
func WithBackendMetrics(m cachecore.MetricsSink) BackendOption {
	return func(cfg backendConfig) backendConfig {
		cfg.metrics = m
		return cfg
	}
}

// requiresURL lists the drivers that cannot run without a "url" parameter.
var requiresURL = map[Driver]bool{
	DriverCassandra: true,
	DriverRedis:     true,
	DriverDynomite:  true,
	DriverMemcached: true,
	DriverTyrant:    true,
	DriverNATS:      true,
	DriverSQL:       true,
}

// NewBackend builds the backend selected by the "type" parameter and wraps
// it with compression, size limits and encryption when those parameters
// are present. It performs no caching; use a Registry to share instances.
//
// Example: redis backend from params
//
//	backend, err := nscache.NewBackend(ctx, cachecore.Params{
//		"type":   "redis",
//		"url":    "127.0.0.1:6379",
//		"expire": "3600",
//	})
func NewBackend(ctx context.Context, params cachecore.Params, opts ...BackendOption) (cachecore.Backend, error) {
	var cfg backendConfig
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = cachecore.NopLogger{}
	}
	if cfg.metrics == nil {
		cfg.metrics = cachecore.NopMetrics{}
	}

	driver := Driver(strings.ToLower(params.StringOr("type", string(DriverMemory))))
	url := params.StringOr("url", "")
	if requiresURL[driver] && url == "" {
		return nil, cachecore.MissingParam("url")
	}
	base, err := baseConfigFromParams(params)
	if err != nil {
		return nil, err
	}

	backend, err := openDriver(ctx, driver, url, params, base, cfg)
	if err != nil {
		return nil, err
	}
	backend = newShapingBackend(backend, base.Compression, base.MaxValueBytes)
	if backend, err = newEncryptingBackend(backend, base.EncryptionKey); err != nil {
		return nil, err
	}
	cfg.logger.Info("cache backend ready", cachecore.Fields{"driver": string(driver)})
	return backend, nil
}

func baseConfigFromParams(p cachecore.Params) (cachecore.BaseConfig, error) {
	base := cachecore.BaseConfig{Prefix: p.StringOr("prefix", "")}
	var err error
	if base.DefaultTTL, _, err = p.Seconds("expire"); err != nil {
		return base, err
	}
	if base.Compression, err = parseCompression(p.StringOr("compression", "")); err != nil {
		return base, err
	}
	if base.MaxValueBytes, _, err = p.Bytes("max_value_bytes"); err != nil {
		return base, err
	}
	if base.EncryptionKey, err = parseEncryptionKey(p.StringOr("encryption_key", "")); err != nil {
		return base, err
	}
	return base, nil
}

func openDriver(ctx context.Context, driver Driver, url string, p cachecore.Params, base cachecore.BaseConfig, cfg backendConfig) (cachecore.Backend, error) {
	switch driver {
	case DriverCassandra:
		cc, err := cassandracache.ConfigFromParams(p)
		if err != nil {
			return nil, err
		}
		cc.Logger = cfg.logger
		cc.Metrics = cfg.metrics
		store, err := cassandracache.New(ctx, cc)
		if err != nil {
			return nil, err
		}
		return store, nil

	case DriverRedis, DriverDynomite:
		client, err := newRedisClient(url, p)
		if err != nil {
			return nil, err
		}
		backend := rediscache.New(rediscache.Config{BaseConfig: base, Client: client, Driver: driver})
		return &ownedBackend{Backend: backend, closers: []func() error{client.Close}}, nil

	case DriverMemcached, DriverTyrant:
		return memcachedcache.New(memcachedcache.Config{
			BaseConfig: base,
			Addresses:  splitList(url),
			Driver:     driver,
		}), nil

	case DriverDynamo:
		return dynamocache.New(ctx, dynamocache.Config{
			BaseConfig: base,
			Endpoint:   url,
			Region:     p.StringOr("region", ""),
			Table:      p.StringOr("table", ""),
		})

	case DriverNATS:
		bucketTTL, _, err := p.Bool("bucket_ttl")
		if err != nil {
			return nil, err
		}
		kv, nc, err := natscache.Dial(url, p.StringOr("bucket", defaultNATSBucket))
		if err != nil {
			return nil, err
		}
		backend := natscache.New(natscache.Config{BaseConfig: base, KeyValue: kv, BucketTTL: bucketTTL})
		return &ownedBackend{Backend: backend, closers: []func() error{func() error { return nc.Drain() }}}, nil

	case DriverSQL:
		return openSQL(url, p, base)

	case DriverRistretto:
		maxCost, _, err := p.Bytes("max_cost")
		if err != nil {
			return nil, err
		}
		counters, _, err := p.Int("num_counters")
		if err != nil {
			return nil, err
		}
		return ristrettocache.New(ristrettocache.Config{
			BaseConfig:  base,
			MaxCost:     int64(maxCost),
			NumCounters: int64(counters),
		})

	case DriverBigcache:
		shards, _, err := p.Int("shards")
		if err != nil {
			return nil, err
		}
		life, _, err := p.Seconds("life_window")
		if err != nil {
			return nil, err
		}
		hardMax, _, err := p.Bytes("hard_max_cache_size")
		if err != nil {
			return nil, err
		}
		return bigcachecache.New(bigcachecache.Config{
			BaseConfig:         base,
			Shards:             shards,
			LifeWindow:         life,
			HardMaxCacheSizeMB: hardMax >> 20,
		})

	case DriverMemory:
		interval, _, err := p.Seconds("cleanup_interval")
		if err != nil {
			return nil, err
		}
		return newMemoryBackend(base.DefaultTTL, interval), nil

	case DriverFile:
		fb, err := newFileBackend(p.StringOr("data_dir", ""), base.DefaultTTL)
		if err != nil {
			return nil, err
		}
		return fb, nil

	case DriverNull:
		return nullBackend{}, nil
	}
	return nil, cachecore.InvalidParam("type", fmt.Sprintf("unknown cache driver %q", string(driver)))
}

func openSQL(dsn string, p cachecore.Params, base cachecore.BaseConfig) (cachecore.Backend, error) {
	table := p.StringOr("table", "")
	switch name := strings.ToLower(p.StringOr("sql_driver", "sqlite")); name {
	case "sqlite":
		return sqlitecache.New(sqlitecache.Config{BaseConfig: base, DSN: dsn, Table: table})
	case "pgx", "postgres":
		return postgrescache.New(postgrescache.Config{BaseConfig: base, DSN: dsn, Table: table})
	case "mysql":
		return mysqlcache.New(mysqlcache.Config{BaseConfig: base, DSN: dsn, Table: table})
	default:
		return nil, cachecore.InvalidParam("sql_driver", fmt.Sprintf("unknown sql driver %q", name))
	}
}

// newRedisClient accepts either "host:port" or a redis:// URL. The db and
// password parameters override whatever the URL carries.
func newRedisClient(url string, p cachecore.Params) (*redis.Client, error) {
	opts := &redis.Options{Addr: url}
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, cachecore.InvalidParam("url", err.Error())
		}
		opts = parsed
	}
	db, ok, err := p.Int("db")
	if err != nil {
		return nil, err
	}
	if ok {
		opts.DB = db
	}
	if pw, ok := p.String("password"); ok {
		opts.Password = pw
	}
	if timeout, ok, err := p.Seconds("socket_timeout"); err != nil {
		return nil, err
	} else if ok {
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return redis.NewClient(opts), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ownedBackend releases client resources the factory created for a driver.
type ownedBackend struct {
	cachecore.Backend
	closers []func() error
}

func (o *ownedBackend) Close() error {
	var first error
	for _, c := range o.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// closeBackend closes b when it holds resources.
func closeBackend(b cachecore.Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
