package resilience

import (
	"context"
	"time"

	"github.com/praneethchandra/workflowforge/core"
)

// WithTimeout runs op under a deadline equal to timeout (when positive).
// If the deadline elapses before op returns, it synthesizes a
// TRANSPORT_TIMEOUT FrameworkError; op's goroutine is left to finish on its
// own time since Go has no preemptive cancellation of arbitrary code, but
// the context passed to op is cancelled so any context-aware call inside
// it unwinds promptly.
func WithTimeout(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(deadlineCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-deadlineCtx.Done():
		if ctx.Err() != nil {
			return core.NewFrameworkError("timeout.guard", core.KindCancelled, "", ctx.Err())
		}
		return core.NewFrameworkError("timeout.guard", core.KindTransportTimeout, "", deadlineCtx.Err())
	}
}
