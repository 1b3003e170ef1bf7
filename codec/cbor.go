package codec

import "github.com/fxamacker/cbor/v2"

// CBOR serializes with fxamacker/cbor. Construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR builds a CBOR serializer. deterministic selects RFC 8949 core
// deterministic encoding so equal values produce equal bytes.
func NewCBOR(deterministic bool) (CBOR, error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (CBOR) Name() string                         { return "cbor" }
func (c CBOR) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c CBOR) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
