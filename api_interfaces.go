package nscache

import (
	"context"
	"time"
)

// CoreAPI exposes basic manager metadata.
type CoreAPI interface {
	Driver() Driver
	Namespace() string
	FormatKey(key string) string
}

// ReadAPI exposes read-oriented operations.
type ReadAPI interface {
	Has(key string) (bool, error)
	HasCtx(ctx context.Context, key string) (bool, error)
	Get(key string) ([]byte, bool, error)
	GetCtx(ctx context.Context, key string) ([]byte, bool, error)
	Keys() ([]string, error)
	KeysCtx(ctx context.Context) ([]string, error)
}

// WriteAPI exposes write and invalidation operations.
type WriteAPI interface {
	Set(key string, value []byte, ttl time.Duration) error
	SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	DeleteCtx(ctx context.Context, key string) error
	Clear() error
	ClearCtx(ctx context.Context) error
}

// ValueAPI exposes serializer-backed helpers.
type ValueAPI interface {
	SetValue(key string, v any, ttl time.Duration) error
	SetValueCtx(ctx context.Context, key string, v any, ttl time.Duration) error
	GetValue(key string, out any) (bool, error)
	GetValueCtx(ctx context.Context, key string, out any) (bool, error)
}

// ManagerAPI is the composed application-facing interface for NamespaceManager.
type ManagerAPI interface {
	CoreAPI
	ReadAPI
	WriteAPI
	ValueAPI
}

var _ ManagerAPI = (*NamespaceManager)(nil)
