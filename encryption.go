package nscache

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/goforj/nscache/cachecore"
)

var (
	encryptionMagic = []byte("ENC1")

	ErrEncryptionKey = errors.New("nscache: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("nscache: decrypt failed")
)

// encryptingBackend seals values with AES-GCM. Reads of values written
// before encryption was enabled pass through untouched.
type encryptingBackend struct {
	inner cachecore.Backend
	aead  cipher.AEAD
}

func newEncryptingBackend(inner cachecore.Backend, key []byte) (cachecore.Backend, error) {
	if len(key) == 0 {
		return inner, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &encryptingBackend{inner: inner, aead: aead}, nil
}

// parseEncryptionKey decodes the hex "encryption_key" parameter.
func parseEncryptionKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, cachecore.InvalidParam("encryption_key", "encryption_key must be hex encoded")
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, &cachecore.ConfigError{Param: "encryption_key", Msg: ErrEncryptionKey.Error(), Err: cachecore.ErrInvalidParameter}
}

func (s *encryptingBackend) Driver() cachecore.Driver { return s.inner.Driver() }

func (s *encryptingBackend) Contains(ctx context.Context, key string) (bool, error) {
	return s.inner.Contains(ctx, key)
}

func (s *encryptingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	plain, err := s.decrypt(body)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (s *encryptingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	enc, err := s.encrypt(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, enc, ttl)
}

func (s *encryptingBackend) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *encryptingBackend) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

func (s *encryptingBackend) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

func (s *encryptingBackend) Close() error { return closeBackend(s.inner) }

func (s *encryptingBackend) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := s.aead.Seal(nil, nonce, plain, nil)
	buf := make([]byte, 0, len(encryptionMagic)+1+len(nonce)+len(ct))
	buf = append(buf, encryptionMagic...)
	buf = append(buf, byte(len(nonce)))
	buf = append(buf, nonce...)
	buf = append(buf, ct...)
	return buf, nil
}

func (s *encryptingBackend) decrypt(in []byte) ([]byte, error) {
	if len(in) < len(encryptionMagic)+1 {
		return in, nil
	}
	if !bytes.Equal(in[:len(encryptionMagic)], encryptionMagic) {
		return in, nil
	}
	nonceLen := int(in[len(encryptionMagic)])
	offset := len(encryptionMagic) + 1
	if len(in) < offset+nonceLen {
		return nil, ErrDecryptFailed
	}
	nonce := in[offset : offset+nonceLen]
	ct := in[offset+nonceLen:]
	plain, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
