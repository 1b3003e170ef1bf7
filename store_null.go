package nscache

import (
	"context"
	"time"

	"github.com/goforj/nscache/cachecore"
)

// nullBackend accepts every write and remembers nothing.
type nullBackend struct{}

func (nullBackend) Driver() cachecore.Driver { return cachecore.DriverNull }

func (nullBackend) Contains(context.Context, string) (bool, error) { return false, nil }

func (nullBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (nullBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (nullBackend) Delete(context.Context, string) error { return nil }

func (nullBackend) Clear(context.Context) error { return nil }

func (nullBackend) Keys(context.Context) ([]string, error) { return nil, nil }
