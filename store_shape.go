package nscache

import (
	"context"
	"time"

	"github.com/goforj/nscache/cachecore"
)

// shapingBackend enforces data shaping concerns (compression, size limits)
// transparently on top of any concrete Backend.
type shapingBackend struct {
	inner cachecore.Backend
	codec CompressionCodec
	max   int
}

func newShapingBackend(inner cachecore.Backend, codec CompressionCodec, max int) cachecore.Backend {
	if (codec == "" || codec == CompressionNone) && max <= 0 {
		return inner
	}
	return &shapingBackend{inner: inner, codec: codec, max: max}
}

func (s *shapingBackend) Driver() cachecore.Driver { return s.inner.Driver() }

func (s *shapingBackend) Contains(ctx context.Context, key string) (bool, error) {
	return s.inner.Contains(ctx, key)
}

func (s *shapingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	decoded, err := decodeValue(body)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *shapingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeValue(s.codec, s.max, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, encoded, ttl)
}

func (s *shapingBackend) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *shapingBackend) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

func (s *shapingBackend) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

func (s *shapingBackend) Close() error { return closeBackend(s.inner) }
