// Package deadline bounds blocking calls with a caller-enforced deadline.
package deadline

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds every backend call unless configured otherwise.
const DefaultTimeout = 30 * time.Second

// ErrExpired is returned when a call does not settle before its deadline.
var ErrExpired = errors.New("deadline expired")

// Call runs fn under timeout. If the deadline passes first the call's context
// is cancelled, whatever fn eventually returns is discarded and ErrExpired is
// returned without waiting for fn. Cancellation of the parent context is
// reported as the parent's error, not as ErrExpired.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(callCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && expired(ctx, callCtx) {
			return zero, ErrExpired
		}
		return out.value, out.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrExpired
	}
}

// Run is Call for functions without a result value.
func Run(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := Call(ctx, timeout, func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, fn(callCtx)
	})
	return err
}

func expired(parent context.Context, callCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
}
