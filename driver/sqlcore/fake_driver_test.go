package sqlcore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// recordingDriver accepts every statement and remembers its text so tests
// can assert the SQL each dialect produces.
type recordingDriver struct {
	mu      sync.Mutex
	seen    []string
	execErr error
	pingErr error
}

func (d *recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{d: d}, nil }

func (d *recordingDriver) record(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, strings.Join(strings.Fields(query), " "))
}

// statements returns the recorded queries containing substr.
func (d *recordingDriver) statements(substr string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, q := range d.seen {
		if strings.Contains(q, substr) {
			out = append(out, q)
		}
	}
	return out
}

type recordingConn struct{ d *recordingDriver }

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	c.d.record(query)
	return recordingStmt{}, nil
}

func (c *recordingConn) Close() error { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions unsupported")
}

func (c *recordingConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.d.record(query)
	if c.d.execErr != nil {
		return nil, c.d.execErr
	}
	return driver.RowsAffected(0), nil
}

func (c *recordingConn) Ping(context.Context) error { return c.d.pingErr }

type recordingStmt struct{}

func (recordingStmt) Close() error                               { return nil }
func (recordingStmt) NumInput() int                              { return -1 }
func (recordingStmt) Exec([]driver.Value) (driver.Result, error) { return driver.RowsAffected(0), nil }
func (recordingStmt) Query([]driver.Value) (driver.Rows, error)  { return emptyRows{}, nil }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return nil }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

var (
	postgresFake = &recordingDriver{}
	mysqlFake    = &recordingDriver{}
	genericFake  = &recordingDriver{}
)

func init() {
	sql.Register("postgres", postgresFake)
	sql.Register("mysql", mysqlFake)
	sql.Register("genericfake", genericFake)
	sql.Register("execfail", &recordingDriver{execErr: errors.New("ddl rejected")})
	sql.Register("pingfail", &recordingDriver{pingErr: errors.New("connection refused")})
}
