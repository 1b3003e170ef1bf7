package cachecore

import (
	"context"
	"time"
)

// Backend is the dictionary contract every storage adapter satisfies.
// Keys arrive fully formatted; backends never add namespace prefixes of
// their own beyond an optional driver-level Prefix.
type Backend interface {
	Driver() Driver
	Contains(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set upserts value. ttl <= 0 falls back to the backend default, which
	// may be "no expiry".
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// Keys lists stored keys. Backends that cannot enumerate return
	// ErrNotImplemented.
	Keys(ctx context.Context) ([]string, error)
}
