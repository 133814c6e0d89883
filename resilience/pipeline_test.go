package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praneethchandra/workflowforge/core"
)

func TestPipeline_InvokeSucceedsAndRecordsSuccess(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 2, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	p := NewPipeline(cb, &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}, 0)

	result, err := p.Invoke(context.Background(), func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"action": action}, nil
	}, "do_thing", nil)

	require.NoError(t, err)
	assert.Equal(t, "do_thing", result["action"])
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestPipeline_OnAttemptFiresForEachRetry(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 5, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	var attempts []int
	p := &Pipeline{
		Breaker: cb,
		Retry:   &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1},
		OnAttempt: func(attempt int) {
			attempts = append(attempts, attempt)
		},
	}

	calls := 0
	_, err = p.Invoke(context.Background(), func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
		calls++
		if calls < 3 {
			return nil, core.NewFrameworkError("mock", core.KindTransportFault, "", nil)
		}
		return map[string]interface{}{"ok": true}, nil
	}, "act", nil)

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestPipeline_TimeoutSynthesizesTransportTimeout(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 5, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	p := NewPipeline(cb, &RetryConfig{MaxAttempts: 1}, 5*time.Millisecond)

	_, err = p.Invoke(context.Background(), func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return map[string]interface{}{}, nil
		}
	}, "slow_act", nil)

	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	// The single attempt is exhausted, so the synthesized timeout arrives
	// wrapped in RETRY_EXHAUSTED as its last cause.
	assert.Equal(t, core.KindRetryExhausted, kind)
	assert.True(t, errors.Is(err, core.ErrTransportTimeout))
}

func TestPipeline_BreakerOpenShortCircuitsBeforeInvoke(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Minute})
	require.NoError(t, err)
	cb.MayInvoke()
	cb.RecordFailure()

	p := NewPipeline(cb, DefaultRetryConfig(), 0)

	calls := 0
	_, err = p.Invoke(context.Background(), func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
		calls++
		return map[string]interface{}{}, nil
	}, "act", nil)

	require.Error(t, err)
	assert.Equal(t, 0, calls)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.KindBreakerOpen, kind)
}
