// Package codec turns application values into the opaque byte blobs that
// backends store.
package codec

import (
	"fmt"
	"strings"

	"github.com/goforj/nscache/cachecore"
)

// Serializer encodes and decodes values. Implementations are safe for
// concurrent use.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Default is the serializer used when none is configured.
var Default Serializer = Msgpack{}

// ByName resolves a serializer name as it appears in configuration.
// An empty name returns Default.
func ByName(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return Default, nil
	case "msgpack":
		return Msgpack{}, nil
	case "json":
		return JSON{}, nil
	case "cbor":
		return NewCBOR(true)
	default:
		return nil, cachecore.InvalidParam("serializer", fmt.Sprintf("unknown serializer %q", name))
	}
}
