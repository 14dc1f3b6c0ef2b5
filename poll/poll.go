// Package poll re-fetches a remote resource until it reaches a terminal state.
//
// The driver knows nothing about runspaces or script executions. It calls a
// fetch function, asks a predicate whether the value is terminal, and waits a
// fixed interval between attempts:
//
//	Pending --fetch--> Pending | Terminal
//
// Every Policy must be bounded, either by MaxWait or by MaxAttempts. A policy
// with neither is rejected with ErrUnbounded rather than polling forever.
//
// Fetch errors are returned immediately. Only the "still pending" case is
// retried, so a failing server is never hidden behind the poll loop.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnbounded is returned for a policy without MaxWait and MaxAttempts.
	ErrUnbounded = errors.New("poll policy has no deadline or attempt bound")
	// ErrInvalidInterval is returned for a non-positive interval.
	ErrInvalidInterval = errors.New("poll interval must be positive")
	// ErrTimeout is wrapped by every *TimeoutError.
	ErrTimeout = errors.New("poll bound exceeded")
)

// DefaultInterval matches the half-second cadence of the service's reference clients.
const DefaultInterval = 500 * time.Millisecond

// Policy configures a poll loop.
type Policy struct {
	// Interval is the fixed wait between two fetches.
	Interval time.Duration
	// MaxWait bounds the total time spent polling. Zero means no time bound.
	MaxWait time.Duration
	// MaxAttempts bounds the number of fetches. Zero means no attempt bound.
	MaxAttempts int
}

// Validate checks that the policy is bounded and has a usable interval.
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, p.Interval)
	}
	if p.MaxWait < 0 || p.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative bound", ErrUnbounded)
	}
	if p.MaxWait == 0 && p.MaxAttempts == 0 {
		return ErrUnbounded
	}
	return nil
}

// TimeoutError is returned when the bound is exceeded.
// Last holds the most recent non-terminal value.
type TimeoutError[T any] struct {
	Attempts int
	Waited   time.Duration
	Last     T
}

func (e *TimeoutError[T]) Error() string {
	return fmt.Sprintf("%v after %d attempts in %s", ErrTimeout, e.Attempts, e.Waited.Round(time.Millisecond))
}

func (e *TimeoutError[T]) Unwrap() error {
	return ErrTimeout
}

// Until calls fetch until done reports true, the policy bound is hit, fetch
// fails, or ctx is cancelled. The first fetch happens immediately.
//
// A fetch that becomes terminal on call N (within the bound) is called
// exactly N times. When the bound is hit, Until returns the last value and a
// *TimeoutError.
func Until[T any](ctx context.Context, p Policy, fetch func(context.Context) (T, error), done func(T) bool) (T, error) {
	var last T
	if err := p.Validate(); err != nil {
		return last, err
	}

	start := time.Now()
	var deadline time.Time
	if p.MaxWait > 0 {
		deadline = start.Add(p.MaxWait)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if done(v) {
			return v, nil
		}
		last = v

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return last, &TimeoutError[T]{Attempts: attempt, Waited: time.Since(start), Last: last}
		}

		wait := p.Interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return last, &TimeoutError[T]{Attempts: attempt, Waited: time.Since(start), Last: last}
			}
			if remaining < wait {
				wait = remaining
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return last, &TimeoutError[T]{Attempts: attempt, Waited: time.Since(start), Last: last}
		}
	}
}
