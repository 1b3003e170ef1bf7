package cassandracache

import (
	"math/rand"
	"net"
	"regexp"
	"time"

	"github.com/gocql/gocql"
	"github.com/goforj/nscache/cachecore"
)

const (
	defaultTable        = "beaker"
	defaultPort         = 9042
	defaultTries        = 1
	defaultWriteTries   = 2
	defaultQueryTimeout = 10 * time.Second
	defaultProtoVersion = 4
	defaultSampleRate   = 10000
	maxContactPoints    = 2
)

var identPattern = regexp.MustCompile(`^[0-9A-Za-z_]+$`)

// Config configures a Cassandra backed store.
type Config struct {
	// URL lists endpoints as "host:port;host:port".
	URL      string
	Keyspace string
	// Table defaults to "beaker".
	Table string
	// Expire is applied to writes that carry no ttl of their own.
	Expire time.Duration

	// Tries bounds has, get and delete; WriteTries bounds set.
	Tries      int
	WriteTries int

	QueryTimeout           time.Duration
	MaxSchemaAgreementWait time.Duration
	Datacenter             string
	ProtocolVersion        int
	Username               string
	Password               string
	// Consistency is a case-insensitive consistency level name such as
	// "local_quorum". Unknown names are ignored.
	Consistency string
	// MetricsSampleRate submits cluster gauges on roughly one query in N.
	MetricsSampleRate int

	Resolver Resolver
	Logger   cachecore.Logger
	Metrics  cachecore.MetricsSink

	shuffle    func(n int, swap func(i, j int))
	newSession func(*gocql.ClusterConfig) (Session, error)
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Tries == 0 {
		c.Tries = defaultTries
	}
	if c.WriteTries == 0 {
		c.WriteTries = defaultWriteTries
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = defaultQueryTimeout
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = defaultProtoVersion
	}
	if c.MetricsSampleRate <= 0 {
		c.MetricsSampleRate = defaultSampleRate
	}
	if c.Resolver == nil {
		c.Resolver = net.DefaultResolver
	}
	if c.Logger == nil {
		c.Logger = cachecore.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = cachecore.NopMetrics{}
	}
	if c.shuffle == nil {
		c.shuffle = rand.Shuffle
	}
	if c.newSession == nil {
		c.newSession = createSession
	}
	return c
}

func (c Config) validate() error {
	if c.Keyspace == "" {
		return cachecore.MissingParam("keyspace")
	}
	if !identPattern.MatchString(c.Keyspace) {
		return cachecore.InvalidParam("keyspace", "keyspace can only have alphanumeric chars and underscore")
	}
	if !identPattern.MatchString(c.Table) {
		return cachecore.InvalidParam("column_family", "table can only have alphanumeric chars and underscore")
	}
	if c.URL == "" {
		return cachecore.MissingParam("url")
	}
	if c.Tries < 1 {
		return cachecore.InvalidParam("tries", "tries must be at least 1")
	}
	if c.WriteTries < 1 {
		return cachecore.InvalidParam("write_tries", "write_tries must be at least 1")
	}
	return nil
}

// ConfigFromParams reads the flat parameter map used by the registry.
func ConfigFromParams(p cachecore.Params) (Config, error) {
	cfg := Config{
		URL:         p.StringOr("url", ""),
		Keyspace:    p.StringOr("keyspace", ""),
		Table:       p.StringOr("column_family", ""),
		Datacenter:  p.StringOr("datacenter", ""),
		Username:    p.StringOr("username", ""),
		Password:    p.StringOr("password", ""),
		Consistency: p.StringOr("consistency_level", ""),
	}
	var err error
	if cfg.Expire, _, err = p.Seconds("expire"); err != nil {
		return Config{}, err
	}
	if cfg.Tries, _, err = p.Int("tries"); err != nil {
		return Config{}, err
	}
	if cfg.WriteTries, _, err = p.Int("write_tries"); err != nil {
		return Config{}, err
	}
	if cfg.QueryTimeout, _, err = p.Seconds("query_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.MaxSchemaAgreementWait, _, err = p.Seconds("max_schema_agreement_wait"); err != nil {
		return Config{}, err
	}
	if cfg.ProtocolVersion, _, err = p.Int("protocol_version"); err != nil {
		return Config{}, err
	}
	if cfg.MetricsSampleRate, _, err = p.Int("metrics_sample_rate"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
