package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes with vmihailenco/msgpack. The zero value is ready to use.
type Msgpack struct{}

func (Msgpack) Name() string                       { return "msgpack" }
func (Msgpack) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
