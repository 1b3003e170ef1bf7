package cassandracache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/gocql/gocql"
)

type codeErr int

func (c codeErr) Code() int       { return int(c) }
func (c codeErr) Message() string { return "server error" }
func (c codeErr) Error() string   { return fmt.Sprintf("server error 0x%x", int(c)) }

func TestIsTransient(t *testing.T) {
	transient := []error{
		gocql.ErrNoConnections,
		gocql.ErrConnectionClosed,
		gocql.ErrTimeoutNoResponse,
		gocql.ErrTooManyTimeouts,
		gocql.ErrNoStreams,
		fmt.Errorf("exec: %w", gocql.ErrNoConnections),
		&gocql.RequestErrReadTimeout{},
		&gocql.RequestErrWriteTimeout{},
		&gocql.RequestErrUnavailable{},
		codeErr(codeOverloaded),
		codeErr(codeBootstrapping),
		codeErr(codeReadFailure),
		codeErr(codeWriteFailure),
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Fatalf("expected transient: %v", err)
		}
	}

	permanent := []error{
		nil,
		errors.New("boom"),
		codeErr(0x2000), // syntax
		codeErr(0x2100), // unauthorized
		codeErr(0x2200), // invalid
		context.Canceled,
		context.DeadlineExceeded,
		gocql.ErrNotFound,
	}
	for _, err := range permanent {
		if IsTransient(err) {
			t.Fatalf("expected not transient: %v", err)
		}
	}
}
