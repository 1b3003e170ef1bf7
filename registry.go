package nscache

import (
	"context"
	"sync"

	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/codec"
	"golang.org/x/sync/singleflight"
)

// Registry shares backends between callers that ask for identical
// parameters. Instances are keyed by Params.Canonical and live until Close.
// Concurrent first use of the same parameters builds a single backend.
type Registry struct {
	mu       sync.Mutex
	backends map[string]cachecore.Backend
	group    singleflight.Group

	open    func(context.Context, cachecore.Params, ...BackendOption) (cachecore.Backend, error)
	opts    []BackendOption
	logger  cachecore.Logger
	metrics cachecore.MetricsSink
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to every backend and manager.
func WithRegistryLogger(l cachecore.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithRegistryMetrics sets the metrics sink handed to every backend. Managers
// built through the registry also report operations to it.
func WithRegistryMetrics(m cachecore.MetricsSink) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// withOpener replaces NewBackend; used by tests.
func withOpener(fn func(context.Context, cachecore.Params, ...BackendOption) (cachecore.Backend, error)) RegistryOption {
	return func(r *Registry) { r.open = fn }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		backends: map[string]cachecore.Backend{},
		open:     NewBackend,
		logger:   cachecore.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.opts = append(r.opts, WithBackendLogger(r.logger))
	if r.metrics != nil {
		r.opts = append(r.opts, WithBackendMetrics(r.metrics))
	}
	return r
}

// Backend returns the shared backend for params, building it on first use.
// Construction errors are returned to every waiting caller and nothing is
// cached, so a later call retries.
func (r *Registry) Backend(ctx context.Context, params cachecore.Params) (cachecore.Backend, error) {
	key := params.Canonical()
	r.mu.Lock()
	if b, ok := r.backends[key]; ok {
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.Lock()
		if b, ok := r.backends[key]; ok {
			r.mu.Unlock()
			return b, nil
		}
		r.mu.Unlock()

		// Shared by every waiter; one caller giving up must not fail the rest.
		b, err := r.open(context.WithoutCancel(ctx), params.Clone(), r.opts...)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.backends[key] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cachecore.Backend), nil
}

// Manager builds a NamespaceManager over the shared backend for params. The
// "serializer" parameter selects the value codec.
//
// Example: cassandra sessions
//
//	reg := nscache.NewRegistry()
//	mgr, err := reg.Manager(ctx, "sessions", cachecore.Params{
//		"type":     "cassandra_cql",
//		"url":      "cass1:9042;cass2:9042",
//		"keyspace": "beaker",
//	})
func (r *Registry) Manager(ctx context.Context, namespace string, params cachecore.Params, opts ...ManagerOption) (*NamespaceManager, error) {
	serializer, err := codec.ByName(params.StringOr("serializer", ""))
	if err != nil {
		return nil, err
	}
	backend, err := r.Backend(ctx, params)
	if err != nil {
		return nil, err
	}
	base := []ManagerOption{WithSerializer(serializer), WithLogger(r.logger)}
	if r.metrics != nil {
		base = append(base, WithObserver(MetricsObserver{Sink: r.metrics, Logger: r.logger}))
	}
	return NewNamespaceManager(namespace, backend, append(base, opts...)...), nil
}

// Len reports how many backends are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backends)
}

// Close releases every backend that holds resources and empties the
// registry. The first error is returned after all backends were visited.
func (r *Registry) Close() error {
	r.mu.Lock()
	backends := r.backends
	r.backends = map[string]cachecore.Backend{}
	r.mu.Unlock()

	var first error
	for key, b := range backends {
		if err := closeBackend(b); err != nil {
			r.logger.Warn("close cache backend failed", cachecore.Fields{"driver": string(b.Driver()), "params": key, "error": err})
			if first == nil {
				first = err
			}
		}
	}
	return first
}
