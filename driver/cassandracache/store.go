package cassandracache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/retry"
)

var _ cachecore.Backend = (*Store)(nil)

// Store is a Cassandra table used as a key-value dictionary.
type Store struct {
	cfg     Config
	session Session
	stmts   statements
	read    retry.Policy
	write   retry.Policy
	log     cachecore.Logger
	metrics cachecore.MetricsSink
}

// New validates cfg, connects to the cluster, ensures the table exists and
// returns a ready store. Configuration errors are reported before any
// network I/O; connection errors are not retried.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sess, err := connect(ctx, cfg, newClusterMetrics(cfg))
	if err != nil {
		return nil, err
	}
	s, err := newStore(ctx, cfg, sess)
	if err != nil {
		sess.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, cfg Config, sess Session) (*Store, error) {
	s := &Store{
		cfg:     cfg,
		session: sess,
		stmts:   newStatements(cfg.Table),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	s.read = retry.Policy{Tries: cfg.Tries, Retryable: IsTransient, Notify: s.onRetry}
	s.write = s.read.WithTries(cfg.WriteTries)
	if err := s.session.Exec(ctx, s.stmts.createTable); err != nil {
		return nil, fmt.Errorf("cassandra: ensure table %s.%s: %w", cfg.Keyspace, cfg.Table, err)
	}
	return s, nil
}

func (s *Store) Driver() cachecore.Driver { return cachecore.DriverCassandra }

// Contains reports whether a row exists for key.
func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	return retry.Value(ctx, "has", s.read, func(ctx context.Context) (bool, error) {
		n, err := s.session.Count(ctx, s.stmts.contains, key)
		if err != nil {
			return false, err
		}
		if n != 0 && n != 1 {
			return false, &cachecore.InvariantError{Op: "has", Key: key, Detail: fmt.Sprintf("count is %d", n)}
		}
		return n == 1, nil
	})
}

// Get returns the stored blob for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rows, err := retry.Value(ctx, "get", s.read, func(ctx context.Context) ([][]byte, error) {
		return s.session.Blobs(ctx, s.stmts.get, key)
	})
	if err != nil {
		return nil, false, err
	}
	switch len(rows) {
	case 0:
		return nil, false, nil
	case 1:
		if rows[0] == nil {
			return []byte{}, true, nil
		}
		return rows[0], true, nil
	default:
		return nil, false, &cachecore.InvariantError{Op: "get", Key: key, Detail: fmt.Sprintf("found %d rows", len(rows))}
	}
}

// Set upserts key. A positive ttl wins over Config.Expire; with neither
// the row never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	secs := s.ttlSeconds(ttl)
	return retry.Do(ctx, "set", s.write, func(ctx context.Context) error {
		if secs > 0 {
			return s.session.Exec(ctx, s.stmts.setTTL, key, value, secs)
		}
		return s.session.Exec(ctx, s.stmts.set, key, value)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return retry.Do(ctx, "delete", s.read, func(ctx context.Context) error {
		return s.session.Exec(ctx, s.stmts.delete, key)
	})
}

// Clear truncates the whole table, including rows of other namespaces.
func (s *Store) Clear(ctx context.Context) error {
	s.log.Warn("cassandra: truncating table", cachecore.Fields{"keyspace": s.cfg.Keyspace, "table": s.cfg.Table})
	return s.session.Exec(ctx, s.stmts.truncate)
}

// Keys is not supported: the table may be shared by many namespaces and
// has no index to scan them by.
func (s *Store) Keys(context.Context) ([]string, error) {
	return nil, cachecore.ErrNotImplemented
}

// Close releases the session. Stores obtained from a registry are shared
// and should not be closed by individual users.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}

func (s *Store) ttlSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		ttl = s.cfg.Expire
	}
	if ttl <= 0 {
		return 0
	}
	secs := int(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}

func (s *Store) onRetry(ev retry.Event) {
	tags := []string{
		"function:" + ev.Op,
		"status:" + string(ev.Status),
		"retry_count:" + strconv.Itoa(ev.Remaining),
	}
	if err := s.metrics.Increment(retryMetric, tags...); err != nil {
		s.log.Debug("cassandra: dropping retry counter", cachecore.Fields{"error": err})
	}
	if ev.Status == retry.StatusRetry {
		s.log.Warn("cassandra: retryable error, retrying", cachecore.Fields{
			"function": ev.Op,
			"try":      ev.Attempt,
			"error":    ev.Err,
		})
	}
}
