package nscache

import (
	"github.com/goforj/nscache/cachecore"
	"github.com/goforj/nscache/codec"
)

// managerConfig collects the optional collaborators of a NamespaceManager.
type managerConfig struct {
	serializer codec.Serializer
	observers  []Observer
	logger     cachecore.Logger
}

func (c managerConfig) withDefaults() managerConfig {
	if c.serializer == nil {
		c.serializer = codec.Default
	}
	if c.logger == nil {
		c.logger = cachecore.NopLogger{}
	}
	return c
}

// ManagerOption mutates managerConfig when constructing a NamespaceManager.
type ManagerOption func(managerConfig) managerConfig

// WithSerializer selects how SetValue/GetValue encode application values.
// msgpack is used when unset.
func WithSerializer(s codec.Serializer) ManagerOption {
	return func(cfg managerConfig) managerConfig {
		cfg.serializer = s
		return cfg
	}
}

// WithObserver adds an observer; repeated calls stack.
func WithObserver(o Observer) ManagerOption {
	return func(cfg managerConfig) managerConfig {
		if o != nil {
			cfg.observers = append(cfg.observers, o)
		}
		return cfg
	}
}

// WithLogger sets the logger used for operation failures.
func WithLogger(l cachecore.Logger) ManagerOption {
	return func(cfg managerConfig) managerConfig {
		cfg.logger = l
		return cfg
	}
}
