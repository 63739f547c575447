// Package retry provides fixed-backoff bounded retry helpers.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds an operation to Attempts tries with a fixed Backoff pause
// after every failed try.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Default is three attempts 150ms apart.
var Default = Policy{Attempts: 3, Backoff: 150 * time.Millisecond}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// ErrExhausted is wrapped by the error Do returns once every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Op is one attempt. attempt starts at 1.
type Op[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs op until it succeeds or the policy is exhausted. The returned
// error wraps both ErrExhausted and the last attempt's error. Context
// cancellation aborts immediately with ctx.Err().
func Do[T any](ctx context.Context, p Policy, op Op[T]) (T, error) {
	var zero T
	var lastErr error

	n := p.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == n {
			break
		}
		if err := Sleep(ctx, p.Backoff); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, n, lastErr)
}

// Until runs op until accept reports true for its result or the policy is
// exhausted. Unlike Do, an unaccepted result is not an error: the last
// result is returned together with ok=false. Errors from op abort at once.
func Until[T any](ctx context.Context, p Policy, op Op[T], accept func(T) bool) (v T, attempts int, ok bool, err error) {
	n := p.attempts()
	for attempts = 1; attempts <= n; attempts++ {
		v, err = op(ctx, attempts)
		if err != nil {
			return v, attempts, false, err
		}
		if accept(v) {
			return v, attempts, true, nil
		}
		if attempts == n {
			break
		}
		if err = Sleep(ctx, p.Backoff); err != nil {
			return v, attempts, false, err
		}
	}
	return v, n, false, nil
}

// Poll checks cond every interval until it holds or timeout elapses. It
// reports whether cond held. cond is checked once before any waiting.
func Poll(ctx context.Context, interval, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if cond() {
				return true
			}
			if !time.Now().Before(deadline) {
				return false
			}
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
