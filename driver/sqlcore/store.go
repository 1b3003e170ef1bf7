package sqlcore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goforj/nscache/cachecore"
)

const (
	defaultTable  = "beaker_cache"
	defaultPrefix = "beaker"
	likeEscape    = "!"
)

// Config configures a SQL-backed cache store.
type Config struct {
	cachecore.BaseConfig
	// DriverName is the database/sql driver: "sqlite", "pgx"/"postgres" or "mysql".
	DriverName string
	DSN        string
	Table      string
}

type sqlStore struct {
	db         *sql.DB
	table      string
	driverName string
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	clearStmt  *sql.Stmt
	keysStmt   *sql.Stmt
}

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// New opens DSN, ensures the cache table exists and prepares the statement
// set. Rows are (k, v, ea) where ea is the expiry in unix milliseconds and
// 0 means the row never expires.
func New(cfg Config) (cachecore.Backend, error) {
	s, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func open(cfg Config) (*sqlStore, error) {
	if cfg.DriverName == "" {
		return nil, cachecore.MissingParam("sql driver name")
	}
	if cfg.DSN == "" {
		return nil, cachecore.MissingParam("url")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	db, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &sqlStore{
		db:         db,
		table:      table,
		driverName: cfg.DriverName,
		prefix:     prefix,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure sql cache table %q: %w", table, err)
	}
	if err := s.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() cachecore.Driver { return cachecore.DriverSQL }

func (s *sqlStore) ensureSchema() error {
	var stmt string
	switch {
	case s.isPostgres():
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL,
			ea BIGINT NOT NULL
		);`, s.table)
	case s.isMySQL():
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(255) PRIMARY KEY,
			v LONGBLOB NOT NULL,
			ea BIGINT NOT NULL
		) ENGINE=InnoDB;`, s.table)
	default: // sqlite
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			ea INTEGER NOT NULL
		);`, s.table)
	}
	_, err := s.db.Exec(stmt)
	return err
}

func (s *sqlStore) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	var exp int64
	err := s.getStmt.QueryRowContext(ctx, s.cacheKey(key)).Scan(&v, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if s.expired(exp) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var exp int64
	if ttl > 0 {
		exp = s.now().Add(ttl).UnixMilli()
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.upsertStmt.ExecContext(ctx, s.cacheKey(key), value, exp, value, exp)
	return err
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, s.cacheKey(key))
	return err
}

// Clear deletes every row under the store prefix.
func (s *sqlStore) Clear(ctx context.Context) error {
	_, err := s.clearStmt.ExecContext(ctx, s.likePattern())
	return err
}

// Keys lists live keys under the store prefix with the prefix removed.
func (s *sqlStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.keysStmt.QueryContext(ctx, s.likePattern(), s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, strings.TrimPrefix(k, s.prefix+":"))
	}
	return out, rows.Err()
}

// Close releases the prepared statements and the connection pool.
func (s *sqlStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.upsertStmt, s.deleteStmt, s.clearStmt, s.keysStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *sqlStore) expired(exp int64) bool {
	return exp > 0 && s.now().UnixMilli() > exp
}

func (s *sqlStore) cacheKey(key string) string {
	return s.prefix + ":" + key
}

// likePattern matches every key under the prefix. "!" escapes LIKE
// wildcards on all three dialects.
func (s *sqlStore) likePattern() string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s.prefix+":") + "%"
}

func (s *sqlStore) upsertSQL() string {
	p1, p2, p3, p4, p5 := s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5)
	switch {
	case s.isPostgres():
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = %s, ea = %s", s.table, p1, p2, p3, p4, p5)
	case s.isMySQL():
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = %s, ea = %s", s.table, p1, p2, p3, p4, p5)
	default: // sqlite
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT(k) DO UPDATE SET v = %s, ea = %s", s.table, p1, p2, p3, p4, p5)
	}
}

func (s *sqlStore) getSQL() string {
	return fmt.Sprintf("SELECT v, ea FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) clearSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k LIKE %s ESCAPE '%s'", s.table, s.ph(1), likeEscape)
}

func (s *sqlStore) keysSQL() string {
	return fmt.Sprintf("SELECT k FROM %s WHERE k LIKE %s ESCAPE '%s' AND (ea = 0 OR ea >= %s) ORDER BY k", s.table, s.ph(1), likeEscape, s.ph(2))
}

func (s *sqlStore) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(s.getSQL()); err != nil {
		return err
	}
	if s.upsertStmt, err = s.db.Prepare(s.upsertSQL()); err != nil {
		return err
	}
	if s.deleteStmt, err = s.db.Prepare(s.deleteSQL()); err != nil {
		return err
	}
	if s.clearStmt, err = s.db.Prepare(s.clearSQL()); err != nil {
		return err
	}
	if s.keysStmt, err = s.db.Prepare(s.keysSQL()); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) isPostgres() bool {
	return s.driverName == "postgres" || s.driverName == "pgx"
}

func (s *sqlStore) isMySQL() bool {
	return s.driverName == "mysql"
}

func (s *sqlStore) ph(i int) string {
	if s.isPostgres() {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return cachecore.MissingParam("table")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return cachecore.InvalidParam("table", fmt.Sprintf("invalid sql table name %q", name))
		}
	}
	return nil
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
