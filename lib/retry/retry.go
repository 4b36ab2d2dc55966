// Package retry runs upstream calls under a bounded, linearly growing backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Linear is a backoff.BackOff whose n-th delay is n*Step, capped at Max when Max > 0.
type Linear struct {
	Step time.Duration
	Max  time.Duration

	n int64
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	l.n++
	d := time.Duration(l.n) * l.Step
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() { l.n = 0 }

// Policy bounds a retried operation.
type Policy struct {
	// Attempts is the total number of tries including the first; values below 1 mean 1.
	Attempts int
	// Step is the linear backoff unit: the wait after attempt n is n*Step.
	Step time.Duration
	// Notify observes each failed attempt that will be retried.
	Notify func(err error, wait time.Duration)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, exhausts the policy or ctx ends.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(&Linear{Step: p.Step}),
		backoff.WithMaxTries(uint(attempts)),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}
	return backoff.Retry(ctx, func() (T, error) {
		return op(ctx)
	}, opts...)
}
