package nscache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goforj/nscache/cachecore"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

// fileRecordMagic heads every entry file, followed by the expiry in unix
// nanoseconds (0 = never), the key length and the key itself.
var fileRecordMagic = []byte("CFR2")

const (
	fileHeaderSize = 16
	fileSuffix     = ".cache"
)

var errCorruptFileRecord = errors.New("nscache: corrupt file record")

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "nscache-file")
}

// fileBackend stores one file per key, named by the key's SHA-256.
type fileBackend struct {
	dir        string
	defaultTTL time.Duration
	now        func() time.Time
}

func newFileBackend(dir string, defaultTTL time.Duration) (*fileBackend, error) {
	if dir == "" {
		dir = defaultFileDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{dir: dir, defaultTTL: defaultTTL, now: time.Now}, nil
}

func (s *fileBackend) Driver() cachecore.Driver { return cachecore.DriverFile }

func (s *fileBackend) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *fileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := s.path(key)
	_, value, ok, err := s.read(path)
	if err != nil || !ok {
		return nil, false, err
	}
	return value, true, nil
}

func (s *fileBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}

	tmp, err := createTempFile(s.dir, "tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	var header [fileHeaderSize]byte
	copy(header[:4], fileRecordMagic)
	binary.BigEndian.PutUint64(header[4:12], uint64(expiresAt))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(key)))

	for _, chunk := range [][]byte{header[:], []byte(key), value} {
		if _, err := tmp.Write(chunk); err != nil {
			tmp.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return renameFile(tmpPath, s.path(key))
}

func (s *fileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileBackend) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), fileSuffix) {
			_ = os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
	return nil
}

// Keys reads the header of every live entry file.
func (s *fileBackend) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		key, _, ok, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil || !ok {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// read loads path, removing it when it is expired or unreadable.
func (s *fileBackend) read(path string) (string, []byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}
	expiresAt, key, value, err := decodeFileRecord(data)
	if err != nil {
		_ = os.Remove(path)
		return "", nil, false, err
	}
	if expiresAt > 0 && s.now().UnixNano() > expiresAt {
		_ = os.Remove(path)
		return "", nil, false, nil
	}
	return key, value, true, nil
}

func (s *fileBackend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

func decodeFileRecord(data []byte) (int64, string, []byte, error) {
	if len(data) < fileHeaderSize || !bytes.Equal(data[:4], fileRecordMagic) {
		return 0, "", nil, errCorruptFileRecord
	}
	expiresAt := int64(binary.BigEndian.Uint64(data[4:12]))
	keyLen := int(binary.BigEndian.Uint32(data[12:16]))
	if len(data) < fileHeaderSize+keyLen {
		return 0, "", nil, errCorruptFileRecord
	}
	key := string(data[fileHeaderSize : fileHeaderSize+keyLen])
	return expiresAt, key, data[fileHeaderSize+keyLen:], nil
}
