package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/praneethchandra/workflowforge/core"
)

// RetryConfig configures the bounded-attempt executor.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig provides sensible defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// BackoffDelay computes delay(i) = min(initial * base^(i-1), max_delay) for
// 1-indexed attempt i, before jitter is applied. Exported so tests can
// assert property 4 from the testable-properties list directly.
func BackoffDelay(config *RetryConfig, attempt int) time.Duration {
	d := float64(config.InitialDelay) * pow(config.BackoffFactor, attempt-1)
	max := float64(config.MaxDelay)
	if max > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// applyJitter multiplies d by a uniform random factor in [0.5, 1.5].
func applyJitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}

// Execute runs op up to config.MaxAttempts times (1-indexed attempts). A
// non-retryable error (per core.IsRetryable) returns immediately without
// further attempts. A retryable error that survives every attempt returns
// a RETRY_EXHAUSTED FrameworkError wrapping the last cause. Sleeps between
// attempts honor ctx cancellation.
func Execute(ctx context.Context, config *RetryConfig, op func(ctx context.Context, attempt int) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return core.NewFrameworkError("retry.execute", core.KindCancelled, "", ctx.Err())
		default:
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		delay := BackoffDelay(config, attempt)
		if config.JitterEnabled {
			delay = applyJitter(delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return core.NewFrameworkError("retry.execute", core.KindCancelled, "", ctx.Err())
		case <-timer.C:
		}
	}

	return core.NewFrameworkError("retry.execute", core.KindRetryExhausted, "", lastErr)
}

// ExecuteWithBreaker wraps Execute with a circuit breaker gate, breaker
// outermost: MayInvoke is consulted once, before the retry loop starts,
// short-circuiting with BREAKER_OPEN without consuming any retry attempt;
// the retry loop's final outcome feeds the breaker at most once (a
// cancellation only releases a claimed HALF_OPEN probe).
func ExecuteWithBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, op func(ctx context.Context, attempt int) error) error {
	if !cb.MayInvoke() {
		return core.NewFrameworkErrorMsg("breaker.gate", core.KindBreakerOpen, "", "circuit breaker open")
	}

	err := Execute(ctx, config, op)
	switch {
	case err == nil:
		cb.RecordSuccess()
		return nil
	case isBreakerFailure(err):
		cb.RecordFailure()
	case core.IsCancelled(err):
		// A cancellation mid-call says nothing about transport health;
		// return any claimed HALF_OPEN probe slot so the next caller can
		// still probe.
		cb.releaseProbe()
	default:
		// Only transport-class faults feed the breaker's failure counter:
		// a REMOTE_REJECTION (4xx, validation failure) means the remote
		// answered, so the transport is healthy — the consecutive-failure
		// count resets and a HALF_OPEN probe closes the breaker. A
		// misconfigured-credentials agent that always returns 401 can
		// never trip the breaker, nor wedge it half-open.
		cb.RecordSuccess()
	}
	return err
}

// isBreakerFailure reports whether err's classified kind should count
// toward the breaker's failure threshold. Only transport timeouts and
// faults (and RETRY_EXHAUSTED, which always wraps one of those, since
// Execute returns non-retryable errors immediately without exhausting
// attempts) qualify; REMOTE_REJECTION, BREAKER_OPEN, and CANCELLED never
// do. An unclassified error (not a *core.FrameworkError) is treated as a
// transport-level fault, since every path in this package wraps its
// errors and an unwrapped error can only originate from the caller's own
// op function behaving unexpectedly.
func isBreakerFailure(err error) bool {
	kind, ok := core.KindOf(err)
	if !ok {
		return true
	}
	switch kind {
	case core.KindTransportTimeout, core.KindTransportFault, core.KindRetryExhausted:
		return true
	default:
		return false
	}
}
