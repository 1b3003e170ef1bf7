package cassandracache

import "github.com/gocql/gocql"

var _ gocql.RetryPolicy = NextHostPolicy{}

// NextHostPolicy retries a timed out or unavailable request once on the
// next host of the query plan and surfaces the error after that.
type NextHostPolicy struct{}

// Attempt allows only the first retry.
func (NextHostPolicy) Attempt(q gocql.RetryableQuery) bool {
	return q.Attempts() <= 1
}

func (NextHostPolicy) GetRetryType(err error) gocql.RetryType {
	switch err.(type) {
	case *gocql.RequestErrReadTimeout, *gocql.RequestErrWriteTimeout, *gocql.RequestErrUnavailable:
		return gocql.RetryNextHost
	}
	return gocql.Rethrow
}
