package nscache

import (
	"context"
	"strings"
	"time"

	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/codec"
)

// spacePlaceholder replaces spaces in caller keys before they reach a
// backend. It is the UTF-8 middle dot, bytes 0xC2 0xB7.
const spacePlaceholder = "·"

// NamespaceManager exposes a namespaced key-value API on top of a Backend.
// Every key is stored as "<namespace>:<key>" with spaces replaced by a
// middle dot.
type NamespaceManager struct {
	namespace  string
	backend    cachecore.Backend
	serializer codec.Serializer
	observer   Observer
	logger     cachecore.Logger
}

// NewNamespaceManager binds namespace to backend.
//
// Example: manager over the memory backend
//
//	backend, _ := nscache.NewBackend(ctx, cachecore.Params{"type": "memory"})
//	mgr := nscache.NewNamespaceManager("sessions", backend)
//	_ = mgr.Set("user 42", []byte("Ada"), 0)
//	fmt.Println(mgr.FormatKey("user 42")) // sessions:user·42
func NewNamespaceManager(namespace string, backend cachecore.Backend, opts ...ManagerOption) *NamespaceManager {
	var cfg managerConfig
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()
	m := &NamespaceManager{
		namespace:  namespace,
		backend:    backend,
		serializer: cfg.serializer,
		logger:     cfg.logger,
	}
	switch len(cfg.observers) {
	case 0:
	case 1:
		m.observer = cfg.observers[0]
	default:
		m.observer = multiObserver(cfg.observers)
	}
	return m
}

// Namespace returns the namespace every key is scoped to.
func (m *NamespaceManager) Namespace() string { return m.namespace }

// Backend returns the underlying backend.
func (m *NamespaceManager) Backend() cachecore.Backend { return m.backend }

// Driver reports the underlying backend driver.
func (m *NamespaceManager) Driver() Driver { return m.backend.Driver() }

// Serializer reports the serializer used by SetValue and GetValue.
func (m *NamespaceManager) Serializer() codec.Serializer { return m.serializer }

// FormatKey renders the backend key for key.
func (m *NamespaceManager) FormatKey(key string) string {
	return m.namespace + ":" + strings.ReplaceAll(key, " ", spacePlaceholder)
}

// Has reports whether key exists.
func (m *NamespaceManager) Has(key string) (bool, error) {
	return m.HasCtx(context.Background(), key)
}

func (m *NamespaceManager) HasCtx(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := m.backend.Contains(ctx, m.FormatKey(key))
	m.observe(ctx, "has", key, ok, err, start)
	return ok, err
}

// Get returns the raw bytes stored under key.
//
// Example: get bytes
//
//	value, ok, _ := mgr.Get("user 42")
//	fmt.Println(ok, string(value)) // true Ada
func (m *NamespaceManager) Get(key string) ([]byte, bool, error) {
	return m.GetCtx(context.Background(), key)
}

func (m *NamespaceManager) GetCtx(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := m.backend.Get(ctx, m.FormatKey(key))
	m.observe(ctx, "get", key, ok, err, start)
	return body, ok, err
}

// Set writes raw bytes to key. ttl <= 0 defers to the backend default.
func (m *NamespaceManager) Set(key string, value []byte, ttl time.Duration) error {
	return m.SetCtx(context.Background(), key, value, ttl)
}

func (m *NamespaceManager) SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := m.backend.Set(ctx, m.FormatKey(key), value, ttl)
	m.observe(ctx, "set", key, false, err, start)
	return err
}

// Delete removes key. Removing an absent key is not an error.
func (m *NamespaceManager) Delete(key string) error {
	return m.DeleteCtx(context.Background(), key)
}

func (m *NamespaceManager) DeleteCtx(ctx context.Context, key string) error {
	start := time.Now()
	err := m.backend.Delete(ctx, m.FormatKey(key))
	m.observe(ctx, "delete", key, false, err, start)
	return err
}

// Clear empties the backend. Depending on the driver this reaches beyond
// the namespace; on Cassandra it truncates the whole table.
func (m *NamespaceManager) Clear() error {
	return m.ClearCtx(context.Background())
}

func (m *NamespaceManager) ClearCtx(ctx context.Context) error {
	start := time.Now()
	err := m.backend.Clear(ctx)
	m.observe(ctx, "clear", "", false, err, start)
	return err
}

// Keys lists the caller keys stored under this namespace. A literal middle
// dot in a stored key comes back as a space. Backends that cannot
// enumerate return cachecore.ErrNotImplemented.
func (m *NamespaceManager) Keys() ([]string, error) {
	return m.KeysCtx(context.Background())
}

func (m *NamespaceManager) KeysCtx(ctx context.Context) ([]string, error) {
	start := time.Now()
	all, err := m.backend.Keys(ctx)
	m.observe(ctx, "keys", "", err == nil, err, start)
	if err != nil {
		return nil, err
	}
	prefix := m.namespace + ":"
	out := make([]string, 0, len(all))
	for _, k := range all {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, strings.ReplaceAll(strings.TrimPrefix(k, prefix), spacePlaceholder, " "))
	}
	return out, nil
}

// SetValue serializes v and stores it under key.
//
// Example: store a struct
//
//	type profile struct{ Name string }
//	_ = mgr.SetValue("profile", profile{Name: "Ada"}, time.Hour)
func (m *NamespaceManager) SetValue(key string, v any, ttl time.Duration) error {
	return m.SetValueCtx(context.Background(), key, v, ttl)
}

func (m *NamespaceManager) SetValueCtx(ctx context.Context, key string, v any, ttl time.Duration) error {
	body, err := m.serializer.Marshal(v)
	if err != nil {
		m.observe(ctx, "set_value", key, false, err, time.Now())
		return err
	}
	return m.SetCtx(ctx, key, body, ttl)
}

// GetValue decodes the value stored under key into out.
func (m *NamespaceManager) GetValue(key string, out any) (bool, error) {
	return m.GetValueCtx(context.Background(), key, out)
}

func (m *NamespaceManager) GetValueCtx(ctx context.Context, key string, out any) (bool, error) {
	body, ok, err := m.GetCtx(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := m.serializer.Unmarshal(body, out); err != nil {
		m.logger.Warn("decode cached value failed", cachecore.Fields{
			"namespace":  m.namespace,
			"key":        key,
			"serializer": m.serializer.Name(),
			"error":      err,
		})
		return false, err
	}
	return true, nil
}

// GetAs decodes the value stored under key as T.
//
// Example: typed read
//
//	p, ok, _ := nscache.GetAs[profile](mgr, "profile")
//	fmt.Println(ok, p.Name) // true Ada
func GetAs[T any](m *NamespaceManager, key string) (T, bool, error) {
	return GetAsCtx[T](context.Background(), m, key)
}

// GetAsCtx is the context-aware variant of GetAs.
func GetAsCtx[T any](ctx context.Context, m *NamespaceManager, key string) (T, bool, error) {
	var out T
	ok, err := m.GetValueCtx(ctx, key, &out)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

func (m *NamespaceManager) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if err != nil {
		m.logger.Debug("cache operation failed", cachecore.Fields{
			"op":        op,
			"namespace": m.namespace,
			"key":       key,
			"driver":    string(m.backend.Driver()),
			"error":     err,
		})
	}
	if m.observer == nil {
		return
	}
	m.observer.OnOp(ctx, op, key, hit, err, time.Since(start), m.backend.Driver())
}
