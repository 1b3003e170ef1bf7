package sqlcore

import (
	"errors"
	"strings"
	"testing"

	"github.com/goforj/nscache/cachecore"
)

func TestNewRequiresDriverAndDSN(t *testing.T) {
	store, err := New(Config{DriverName: "genericfake"})
	if !errors.Is(err, cachecore.ErrMissingParameter) {
		t.Fatalf("expected missing dsn, got %v", err)
	}
	if store != nil {
		t.Fatalf("expected nil backend on error, got %T", store)
	}
	if _, err := New(Config{DSN: "irrelevant"}); !errors.Is(err, cachecore.ErrMissingParameter) {
		t.Fatalf("expected missing driver name, got %v", err)
	}
}

func TestOpenDefaults(t *testing.T) {
	s, err := open(Config{DriverName: "genericfake", DSN: "irrelevant"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if s.table != "beaker_cache" || s.prefix != "beaker" || s.defaultTTL != 0 {
		t.Fatalf("unexpected defaults table=%q prefix=%q ttl=%v", s.table, s.prefix, s.defaultTTL)
	}
	if s.Driver() != cachecore.DriverSQL {
		t.Fatalf("driver = %s", s.Driver())
	}
}

func TestPostgresDialect(t *testing.T) {
	s, err := open(Config{DriverName: "postgres", DSN: "irrelevant", Table: "pg_sessions"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ddl := postgresFake.statements("CREATE TABLE IF NOT EXISTS pg_sessions")
	if len(ddl) == 0 || !strings.Contains(ddl[0], "v BYTEA NOT NULL") {
		t.Fatalf("expected postgres ddl, got %v", ddl)
	}
	upsert := postgresFake.statements("INSERT INTO pg_sessions")
	if len(upsert) != 1 || !strings.Contains(upsert[0], "VALUES ($1, $2, $3) ON CONFLICT (k)") {
		t.Fatalf("unexpected postgres upsert %v", upsert)
	}
	keys := postgresFake.statements("SELECT k FROM pg_sessions")
	if len(keys) != 1 || !strings.Contains(keys[0], "ea >= $2") {
		t.Fatalf("unexpected postgres keys query %v", keys)
	}
}

func TestMySQLDialect(t *testing.T) {
	s, err := open(Config{DriverName: "mysql", DSN: "irrelevant", Table: "my_sessions"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ddl := mysqlFake.statements("CREATE TABLE IF NOT EXISTS my_sessions")
	if len(ddl) == 0 || !strings.Contains(ddl[0], "ENGINE=InnoDB") {
		t.Fatalf("expected mysql ddl, got %v", ddl)
	}
	upsert := mysqlFake.statements("INSERT INTO my_sessions")
	if len(upsert) != 1 || !strings.Contains(upsert[0], "ON DUPLICATE KEY UPDATE") || strings.Contains(upsert[0], "$1") {
		t.Fatalf("unexpected mysql upsert %v", upsert)
	}
	clear := mysqlFake.statements("DELETE FROM my_sessions WHERE k LIKE")
	if len(clear) != 1 || !strings.Contains(clear[0], "ESCAPE '!'") {
		t.Fatalf("unexpected mysql clear %v", clear)
	}
}

func TestOpenFailures(t *testing.T) {
	if _, err := New(Config{DriverName: "execfail", DSN: "irrelevant", Table: "tbl"}); err == nil {
		t.Fatalf("expected schema error")
	}
	if _, err := New(Config{DriverName: "pingfail", DSN: "irrelevant"}); err == nil {
		t.Fatalf("expected ping error")
	}
	if _, err := New(Config{DriverName: "genericfake", DSN: "irrelevant", Table: "bad-name"}); !errors.Is(err, cachecore.ErrInvalidParameter) {
		t.Fatalf("expected invalid table, got %v", err)
	}
}
