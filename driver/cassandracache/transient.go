package cassandracache

import (
	"context"
	"errors"
	"net"

	"github.com/gocql/gocql"
)

// Native protocol server error codes that describe a temporary condition.
const (
	codeUnavailable   = 0x1000
	codeOverloaded    = 0x1001
	codeBootstrapping = 0x1002
	codeTruncate      = 0x1003
	codeWriteTimeout  = 0x1100
	codeReadTimeout   = 0x1200
	codeReadFailure   = 0x1300
	codeWriteFailure  = 0x1500
)

var transientSentinels = []error{
	gocql.ErrNoConnections,
	gocql.ErrConnectionClosed,
	gocql.ErrTimeoutNoResponse,
	gocql.ErrTooManyTimeouts,
	gocql.ErrNoStreams,
}

// IsTransient reports whether err is a driver connectivity or request
// execution failure that may succeed when the call is repeated. Context
// cancellation, syntax, auth and invalid-request errors are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, s := range transientSentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	var (
		readTimeout  *gocql.RequestErrReadTimeout
		writeTimeout *gocql.RequestErrWriteTimeout
		unavailable  *gocql.RequestErrUnavailable
	)
	if errors.As(err, &readTimeout) || errors.As(err, &writeTimeout) || errors.As(err, &unavailable) {
		return true
	}
	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case codeUnavailable, codeOverloaded, codeBootstrapping, codeTruncate,
			codeWriteTimeout, codeReadTimeout, codeReadFailure, codeWriteFailure:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
