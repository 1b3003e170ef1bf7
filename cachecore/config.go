package cachecore

import "time"

// BaseConfig contains shared, backend-agnostic driver configuration.
//
// A zero DefaultTTL means entries written without an explicit ttl never
// expire on the client side; expiry is left to the store.
type BaseConfig struct {
	DefaultTTL    time.Duration
	Prefix        string
	Compression   CompressionCodec
	MaxValueBytes int
	EncryptionKey []byte
}
