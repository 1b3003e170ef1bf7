// Package retry re-invokes an operation when it fails with an error the
// caller classifies as transient.
//
// Retries are immediate unless the Policy sets a Delay. The budget counts
// total invocations, so Tries == 1 means no retry at all.
package retry

import (
	"context"
	"time"
)

// Status is the outcome recorded in an Event.
type Status string

const (
	// StatusRetry means another attempt follows.
	StatusRetry Status = "retry"
	// StatusError means the budget is spent and the error is returned.
	StatusError Status = "error"
)

// Event describes one transient failure seen by Do.
type Event struct {
	Op        string
	Status    Status
	Attempt   int // 1-based attempt that failed
	Remaining int // attempts left after this failure
	Err       error
}

// Policy bounds and classifies retries.
type Policy struct {
	// Tries is the total number of invocations allowed. Values < 1 mean 1.
	Tries int
	// Retryable reports whether err may be retried. A nil Retryable
	// retries nothing.
	Retryable func(error) bool
	// Notify, when set, observes every transient failure.
	Notify func(Event)
	// Delay is a fixed pause between attempts. A cancelled context ends
	// the wait and is returned as the error.
	Delay time.Duration
}

// WithTries returns a copy of p with a different budget.
func (p Policy) WithTries(n int) Policy {
	p.Tries = n
	return p
}

func (p Policy) budget() int {
	if p.Tries < 1 {
		return 1
	}
	return p.Tries
}

func (p Policy) notify(ev Event) {
	if p.Notify != nil {
		p.Notify(ev)
	}
}

// Do runs fn under p. See Value.
func Do(ctx context.Context, op string, p Policy, fn func(context.Context) error) error {
	_, err := Value(ctx, op, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value runs fn until it succeeds, fails with a non-retryable error, or
// the budget is spent. The error returned is always the one fn produced.
func Value[T any](ctx context.Context, op string, p Policy, fn func(context.Context) (T, error)) (T, error) {
	tries := p.budget()
	remaining := tries
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return v, err
		}
		remaining--
		if remaining <= 0 {
			p.notify(Event{Op: op, Status: StatusError, Attempt: attempt, Remaining: 0, Err: err})
			return v, err
		}
		p.notify(Event{Op: op, Status: StatusRetry, Attempt: attempt, Remaining: remaining, Err: err})
		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return v, ctx.Err()
			case <-timer.C:
			}
		}
	}
}
