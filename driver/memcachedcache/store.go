package memcachedcache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/goforj/nscache/cachecore"
)

const (
	defaultPrefix = "beaker"
	maxKeyLen     = 250
	poolSize      = 16
	// Expiry values above this are read by the server as unix timestamps.
	relativeExpiryLimit = 30 * 24 * time.Hour
)

// ErrInvalidKey is returned for keys the text protocol cannot carry.
var ErrInvalidKey = errors.New("memcached: key too long or contains whitespace")

var dialMemcached = func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 3 * time.Second}
	return d.DialContext(ctx, network, addr)
}

// Config configures a memcached-protocol store.
type Config struct {
	cachecore.BaseConfig
	Addresses []string
	// Driver tags the backend; DriverMemcached when empty, DriverTyrant
	// for Tokyo Tyrant servers using their memcached-compatible port.
	Driver cachecore.Driver
}

type store struct {
	addrs      []string
	defaultTTL time.Duration
	prefix     string
	driver     cachecore.Driver
	pools      map[string]chan *memcachedConn
	now        func() time.Time
}

type memcachedConn struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

// New builds a memcached-protocol cachecore.Backend. Keys are spread over
// Addresses by CRC32 hash so every client agrees on a key's server.
//
// Defaults:
// - Addresses: []string{"127.0.0.1:11211"} when empty
// - DefaultTTL: zero means keys without a ttl never expire
// - Prefix: "beaker" when empty
func New(cfg Config) cachecore.Backend {
	addrs := cfg.Addresses
	if len(addrs) == 0 {
		addrs = []string{"127.0.0.1:11211"}
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	driver := cfg.Driver
	if driver == "" {
		driver = cachecore.DriverMemcached
	}
	pools := make(map[string]chan *memcachedConn, len(addrs))
	for _, addr := range addrs {
		pools[addr] = make(chan *memcachedConn, poolSize)
	}
	return &store{
		addrs:      addrs,
		defaultTTL: cfg.DefaultTTL,
		prefix:     prefix,
		driver:     driver,
		pools:      pools,
		now:        time.Now,
	}
}

func (s *store) Driver() cachecore.Driver { return s.driver }

func (s *store) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full, err := s.cacheKey(key)
	if err != nil {
		return nil, false, err
	}
	mc, err := s.acquire(ctx, s.addrFor(full))
	if err != nil {
		return nil, false, err
	}
	bad := false
	defer func() { s.release(mc, bad) }()

	if _, err := fmt.Fprintf(mc.conn, "get %s\r\n", full); err != nil {
		bad = true
		return nil, false, err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return nil, false, err
	}
	if line == "END\r\n" {
		return nil, false, nil
	}

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 4 || fields[0] != "VALUE" {
		bad = true
		return nil, false, fmt.Errorf("memcached: unexpected response: %s", strings.TrimSpace(line))
	}
	n, err := strconv.Atoi(fields[3])
	if err != nil {
		bad = true
		return nil, false, fmt.Errorf("memcached: parse length: %w", err)
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(mc.reader, value); err != nil {
		bad = true
		return nil, false, err
	}
	if _, err := mc.reader.ReadString('\n'); err != nil { // trailing CRLF
		bad = true
		return nil, false, err
	}
	if _, err := mc.reader.ReadString('\n'); err != nil { // END
		bad = true
		return nil, false, err
	}
	return value, true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	full, err := s.cacheKey(key)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	mc, err := s.acquire(ctx, s.addrFor(full))
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()

	if _, err := fmt.Fprintf(mc.conn, "set %s 0 %d %d\r\n", full, s.exptime(ttl), len(value)); err != nil {
		bad = true
		return err
	}
	if _, err := mc.conn.Write(append(append([]byte(nil), value...), '\r', '\n')); err != nil {
		bad = true
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return err
	}
	if !strings.HasPrefix(line, "STORED") {
		bad = true
		return fmt.Errorf("memcached: set failed: %s", strings.TrimSpace(line))
	}
	return nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	full, err := s.cacheKey(key)
	if err != nil {
		return err
	}
	mc, err := s.acquire(ctx, s.addrFor(full))
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	if _, err := fmt.Fprintf(mc.conn, "delete %s\r\n", full); err != nil {
		bad = true
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return err
	}
	switch strings.TrimSpace(line) {
	case "DELETED", "NOT_FOUND":
		return nil
	default:
		bad = true
		return fmt.Errorf("memcached: delete failed: %s", strings.TrimSpace(line))
	}
}

// Clear flushes every configured server. The protocol cannot flush by
// prefix, so data of other applications on the same servers is lost too.
func (s *store) Clear(ctx context.Context) error {
	for _, addr := range s.addrs {
		if err := s.flush(ctx, addr); err != nil {
			return err
		}
	}
	return nil
}

// Keys is not supported by the memcached protocol.
func (s *store) Keys(context.Context) ([]string, error) {
	return nil, cachecore.ErrNotImplemented
}

func (s *store) flush(ctx context.Context, addr string) error {
	mc, err := s.acquire(ctx, addr)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.release(mc, bad) }()
	if _, err := fmt.Fprintf(mc.conn, "flush_all\r\n"); err != nil {
		bad = true
		return err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		bad = true
		return err
	}
	if !strings.HasPrefix(line, "OK") {
		bad = true
		return fmt.Errorf("memcached: flush %s failed: %s", addr, strings.TrimSpace(line))
	}
	return nil
}

// exptime converts ttl to the protocol's expiry field. 0 means never.
func (s *store) exptime(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	if ttl > relativeExpiryLimit {
		return s.now().Add(ttl).Unix()
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}

func (s *store) addrFor(full string) string {
	if len(s.addrs) == 1 {
		return s.addrs[0]
	}
	return s.addrs[crc32.ChecksumIEEE([]byte(full))%uint32(len(s.addrs))]
}

func (s *store) acquire(ctx context.Context, addr string) (*memcachedConn, error) {
	var mc *memcachedConn
	if pool, ok := s.pools[addr]; ok {
		select {
		case mc = <-pool:
		default:
		}
	}
	if mc == nil {
		conn, err := dialMemcached(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("memcached: dial %s: %w", addr, err)
		}
		mc = &memcachedConn{addr: addr, conn: conn, reader: bufio.NewReader(conn)}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = mc.conn.SetDeadline(deadline)
	}
	return mc, nil
}

func (s *store) release(mc *memcachedConn, bad bool) {
	if mc == nil || mc.conn == nil {
		return
	}
	if bad {
		_ = mc.conn.Close()
		return
	}
	_ = mc.conn.SetDeadline(time.Time{})
	pool, ok := s.pools[mc.addr]
	if !ok {
		_ = mc.conn.Close()
		return
	}
	select {
	case pool <- mc:
	default:
		_ = mc.conn.Close()
	}
}

func (s *store) cacheKey(key string) (string, error) {
	full := key
	if s.prefix != "" {
		full = s.prefix + ":" + key
	}
	if len(full) > maxKeyLen || strings.ContainsAny(full, " \t\r\n") {
		return "", ErrInvalidKey
	}
	return full, nil
}
