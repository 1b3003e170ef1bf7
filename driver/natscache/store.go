package natscache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goforj/nscache/cachecore"
	"github.com/nats-io/nats.go"
)

const defaultPrefix = "beaker"

// envelopeMagic heads every value written without bucket-level TTL. It is
// followed by the expiry in unix milliseconds (0 = never) and the payload.
var envelopeMagic = []byte("NCV1")

const envelopeHeader = 12

var errNoKeyValue = errors.New("nats cache key-value unavailable")

// KeyValue captures the subset of nats.KeyValue used by the store.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

// Config configures a NATS JetStream KeyValue-backed cache store.
type Config struct {
	cachecore.BaseConfig
	KeyValue KeyValue
	// BucketTTL stores raw values and leaves expiry to the bucket's MaxAge.
	BucketTTL bool
}

type store struct {
	kv         KeyValue
	defaultTTL time.Duration
	scope      string
	bucketTTL  bool
	now        func() time.Time
}

// New builds a NATS-backed cachecore.Backend.
//
// Keys are stored as "p.<b64 prefix>.k.<b64 key>" so arbitrary cache keys
// survive the subject-token rules of JetStream key-value buckets.
func New(cfg Config) cachecore.Backend {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &store{
		kv:         cfg.KeyValue,
		defaultTTL: cfg.DefaultTTL,
		scope:      "p." + encodeKeyPart(prefix) + ".k.",
		bucketTTL:  cfg.BucketTTL,
		now:        time.Now,
	}
}

// Dial connects to url and opens bucket, creating it with a history of one
// when it does not exist yet.
func Dial(url, bucket string, opts ...nats.Option) (KeyValue, *nats.Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, History: 1})
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open nats bucket %q: %w", bucket, err)
	}
	return kv, nc, nil
}

func (s *store) Driver() cachecore.Driver { return cachecore.DriverNATS }

func (s *store) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errNoKeyValue
	}
	cacheKey := s.cacheKey(key)
	entry, err := s.kv.Get(cacheKey)
	if isMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if op := entry.Operation(); op == nats.KeyValueDelete || op == nats.KeyValuePurge {
		return nil, false, nil
	}
	if s.bucketTTL {
		return cloneBytes(entry.Value()), true, nil
	}
	expiresAt, value, err := decodeEnvelope(entry.Value())
	if err != nil {
		return nil, false, err
	}
	if expiresAt > 0 && s.now().UnixMilli() > expiresAt {
		_ = s.kv.Purge(cacheKey)
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (s *store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.kv == nil {
		return errNoKeyValue
	}
	body := cloneBytes(value)
	if !s.bucketTTL {
		body = s.encodeEnvelope(value, ttl)
	}
	_, err := s.kv.Put(s.cacheKey(key), body)
	return err
}

func (s *store) Delete(_ context.Context, key string) error {
	if s.kv == nil {
		return errNoKeyValue
	}
	err := s.kv.Delete(s.cacheKey(key))
	if isMiss(err) {
		return nil
	}
	return err
}

// Clear purges every key under the store prefix.
func (s *store) Clear(_ context.Context) error {
	return s.each(func(full string) error {
		if err := s.kv.Purge(full); err != nil && !isMiss(err) {
			return err
		}
		return nil
	})
}

func (s *store) Keys(_ context.Context) ([]string, error) {
	var out []string
	err := s.each(func(full string) error {
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(full, s.scope))
		if err != nil {
			return fmt.Errorf("decode nats key %q: %w", full, err)
		}
		out = append(out, string(raw))
		return nil
	})
	return out, err
}

func (s *store) each(fn func(full string) error) error {
	if s.kv == nil {
		return errNoKeyValue
	}
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		if !strings.HasPrefix(key, s.scope) {
			continue
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *store) cacheKey(key string) string {
	return s.scope + encodeKeyPart(key)
}

func (s *store) encodeEnvelope(value []byte, ttl time.Duration) []byte {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	body := make([]byte, envelopeHeader+len(value))
	copy(body[:4], envelopeMagic)
	binary.BigEndian.PutUint64(body[4:envelopeHeader], uint64(expiresAt))
	copy(body[envelopeHeader:], value)
	return body
}

func decodeEnvelope(body []byte) (int64, []byte, error) {
	if len(body) < envelopeHeader || !bytes.Equal(body[:4], envelopeMagic) {
		return 0, nil, errors.New("nats cache value missing envelope")
	}
	return int64(binary.BigEndian.Uint64(body[4:envelopeHeader])), body[envelopeHeader:], nil
}

func isMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

func encodeKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
