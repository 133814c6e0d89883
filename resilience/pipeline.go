package resilience

import (
	"context"
	"time"
)

// Invoker is the bare call a Pipeline wraps: invoke_raw(action, params) ->
// result, the uniform shape every agent variant reduces to.
type Invoker func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error)

// Pipeline composes the breaker gate, retry loop, and timeout guard around
// a single agent's Invoker, in the order the resilience design mandates:
// breaker outermost, retry loop next, timeout guard innermost around each
// bare call. One Pipeline is built per agent binding and reused across
// every task dispatched to that agent.
type Pipeline struct {
	Breaker *CircuitBreaker
	Retry   *RetryConfig
	Timeout time.Duration

	// OnAttempt, when set, is called once per attempt (1-indexed) before
	// that attempt's timeout-guarded invocation runs. The scheduler uses
	// this to track the attempt count on the task's execution record and
	// to publish a task_retrying event for attempt > 1, without Pipeline
	// needing to know about the event bus.
	OnAttempt func(attempt int)
}

// NewPipeline builds a Pipeline from a breaker, retry policy, and an
// effective per-call timeout (already resolved from task override vs agent
// default by the caller).
func NewPipeline(breaker *CircuitBreaker, retry *RetryConfig, timeout time.Duration) *Pipeline {
	return &Pipeline{Breaker: breaker, Retry: retry, Timeout: timeout}
}

// Invoke drives action/params through the full pipeline and returns the
// normalized result payload, or the classified error if every layer gave
// up (BREAKER_OPEN, RETRY_EXHAUSTED, or a non-retryable REMOTE_REJECTION
// surfaced straight through).
func (p *Pipeline) Invoke(ctx context.Context, invoke Invoker, action string, params map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}

	err := ExecuteWithBreaker(ctx, p.Retry, p.Breaker, func(ctx context.Context, attempt int) error {
		if p.OnAttempt != nil {
			p.OnAttempt(attempt)
		}
		return WithTimeout(ctx, p.Timeout, func(ctx context.Context) error {
			r, err := invoke(ctx, action, params)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
