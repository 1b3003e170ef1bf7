package cachecore

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Params is the flat string-keyed configuration map handed to backends.
type Params map[string]string

// String returns the trimmed value for key and whether it was non-empty.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// StringOr returns the value for key or def when unset.
func (p Params) StringOr(key, def string) string {
	if v, ok := p.String(key); ok {
		return v
	}
	return def
}

// Int parses key as an integer. ok is false when the key is unset.
func (p Params) Int(key string) (n int, ok bool, err error) {
	v, ok := p.String(key)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil {
		return 0, true, InvalidParam(key, key+" must be an integer")
	}
	return n, true, nil
}

// Float parses key as a float.
func (p Params) Float(key string) (f float64, ok bool, err error) {
	v, ok := p.String(key)
	if !ok {
		return 0, false, nil
	}
	f, err = strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, true, InvalidParam(key, key+" must be a number")
	}
	return f, true, nil
}

// Seconds parses key as a (possibly fractional) number of seconds.
func (p Params) Seconds(key string) (time.Duration, bool, error) {
	f, ok, err := p.Float(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	return time.Duration(f * float64(time.Second)), true, nil
}

// Bool parses key with strconv.ParseBool.
func (p Params) Bool(key string) (b bool, ok bool, err error) {
	v, ok := p.String(key)
	if !ok {
		return false, false, nil
	}
	b, err = strconv.ParseBool(v)
	if err != nil {
		return false, true, InvalidParam(key, key+" must be a boolean")
	}
	return b, true, nil
}

// Bytes parses key as a byte size; both "1048576" and "1MiB" are accepted.
func (p Params) Bytes(key string) (int, bool, error) {
	v, ok := p.String(key)
	if !ok {
		return 0, false, nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, true, InvalidParam(key, key+" must be a byte size")
	}
	return int(n), true, nil
}

// Canonical renders p as a sorted, query-escaped string. Two maps give the
// same string only when they hold the same pairs.
func (p Params) Canonical() string {
	values := make(url.Values, len(p))
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
