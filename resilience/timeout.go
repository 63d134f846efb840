package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds a single attempt.
type Timeout struct {
	limit time.Duration
}

// NewTimeout creates a Timeout. A non-positive limit defaults to 5 seconds.
func NewTimeout(limit time.Duration) *Timeout {
	if limit <= 0 {
		limit = 5 * time.Second
	}
	return &Timeout{limit: limit}
}

// Execute runs op with a deadline of now+limit. When the deadline passes the
// returned error wraps both ErrTimeout and context.DeadlineExceeded. The
// caller's own cancellation is returned as ctx.Err().
//
// op must honor its context; Execute waits for it to return so that no
// attempt outlives the call.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	err := op(attemptCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, t.limit, err)
	}
	return err
}

// Limit returns the configured limit.
func (t *Timeout) Limit() time.Duration {
	return t.limit
}
