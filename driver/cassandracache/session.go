package cassandracache

import (
	"context"

	"github.com/gocql/gocql"
)

// Session is the part of a CQL session the store uses.
type Session interface {
	Exec(ctx context.Context, stmt string, values ...any) error
	// Count scans a single bigint column from a single row.
	Count(ctx context.Context, stmt string, values ...any) (int64, error)
	// Blobs returns the first column of every row.
	Blobs(ctx context.Context, stmt string, values ...any) ([][]byte, error)
	Close()
}

type gocqlSession struct{ s *gocql.Session }

func createSession(cc *gocql.ClusterConfig) (Session, error) {
	s, err := cc.CreateSession()
	if err != nil {
		return nil, err
	}
	return gocqlSession{s: s}, nil
}

func (g gocqlSession) query(ctx context.Context, stmt string, values []any) *gocql.Query {
	return g.s.Query(stmt, values...).WithContext(ctx).Idempotent(true)
}

func (g gocqlSession) Exec(ctx context.Context, stmt string, values ...any) error {
	return g.query(ctx, stmt, values).Exec()
}

func (g gocqlSession) Count(ctx context.Context, stmt string, values ...any) (int64, error) {
	var n int64
	if err := g.query(ctx, stmt, values).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (g gocqlSession) Blobs(ctx context.Context, stmt string, values ...any) ([][]byte, error) {
	iter := g.query(ctx, stmt, values).Iter()
	var out [][]byte
	var data []byte
	for iter.Scan(&data) {
		out = append(out, data)
		data = nil
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g gocqlSession) Close() { g.s.Close() }
