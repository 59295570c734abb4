package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports an operation that overran its limit. It matches
// context.DeadlineExceeded under errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// WithTimeout runs fn under a deadline of limit; a non-positive limit runs
// fn with ctx unchanged. When the deadline passes first it returns a
// *TimeoutError without waiting for fn, which must return once its context
// is done. Cancellation of ctx itself is returned as ctx.Err(), wrapped
// with op.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(runCtx) }()

	select {
	case err := <-done:
		if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &TimeoutError{Op: op, Limit: limit}
		}
		return err
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return &TimeoutError{Op: op, Limit: limit}
	}
}
