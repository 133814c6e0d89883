package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praneethchandra/workflowforge/core"
)

func TestBackoffDelay_NonDecreasingUpToMax(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}

	d1 := BackoffDelay(cfg, 1)
	d2 := BackoffDelay(cfg, 2)
	d3 := BackoffDelay(cfg, 3)
	d4 := BackoffDelay(cfg, 4)

	assert.Equal(t, 10*time.Millisecond, d1)
	assert.Equal(t, 20*time.Millisecond, d2)
	assert.Equal(t, 40*time.Millisecond, d3)
	assert.Equal(t, 50*time.Millisecond, d4, "capped at MaxDelay")
}

func TestExecute_RetriesOnTransportFaultThenSucceeds(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, JitterEnabled: false}

	calls := 0
	err := Execute(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return core.NewFrameworkError("mock.invoke", core.KindTransportFault, "", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_NonRetryableErrorStopsImmediately(t *testing.T) {
	cfg := DefaultRetryConfig()

	calls := 0
	err := Execute(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return core.NewFrameworkError("mock.invoke", core.KindRemoteRejection, "", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.KindRemoteRejection, kind)
}

func TestExecute_ExhaustionReturnsRetryExhausted(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, JitterEnabled: false}

	calls := 0
	err := Execute(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return core.NewFrameworkError("mock.invoke", core.KindTransportFault, "", nil)
	})

	require.Error(t, err)
	assert.Equal(t, cfg.MaxAttempts, calls)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.KindRetryExhausted, kind)
}

func TestExecuteWithBreaker_OpenBreakerShortCircuits(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Minute})
	require.NoError(t, err)
	cb.MayInvoke()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.GetState())

	calls := 0
	execErr := ExecuteWithBreaker(context.Background(), DefaultRetryConfig(), cb, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	require.Error(t, execErr)
	assert.Equal(t, 0, calls, "invoke_raw must not be called when the breaker denies the attempt")
	kind, ok := core.KindOf(execErr)
	require.True(t, ok)
	assert.Equal(t, core.KindBreakerOpen, kind)
}

func TestExecuteWithBreaker_RemoteRejectionDoesNotFeedBreaker(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 2, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	cfg := DefaultRetryConfig()
	for i := 0; i < 5; i++ {
		execErr := ExecuteWithBreaker(context.Background(), cfg, cb, func(ctx context.Context, attempt int) error {
			return core.NewFrameworkError("mock.invoke", core.KindRemoteRejection, "", nil)
		})
		require.Error(t, execErr)
		kind, ok := core.KindOf(execErr)
		require.True(t, ok)
		assert.Equal(t, core.KindRemoteRejection, kind)
	}

	assert.Equal(t, StateClosed, cb.GetState(), "a client-side 4xx must never trip the breaker, however many times it recurs")
}

func TestExecuteWithBreaker_HalfOpenRejectionClosesBreaker(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Millisecond})
	require.NoError(t, err)
	require.True(t, cb.MayInvoke())
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)

	execErr := ExecuteWithBreaker(context.Background(), &RetryConfig{MaxAttempts: 1}, cb, func(ctx context.Context, attempt int) error {
		return core.NewFrameworkError("mock.invoke", core.KindRemoteRejection, "", nil)
	})

	require.Error(t, execErr)
	assert.Equal(t, StateClosed, cb.GetState(), "a probe that reaches the remote proves the transport recovered")
	assert.True(t, cb.MayInvoke(), "the breaker must not stay wedged with an unreleased probe")
}

func TestExecuteWithBreaker_TransportFaultFeedsBreaker(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	cfg := &RetryConfig{MaxAttempts: 1}
	execErr := ExecuteWithBreaker(context.Background(), cfg, cb, func(ctx context.Context, attempt int) error {
		return core.NewFrameworkError("mock.invoke", core.KindTransportFault, "", nil)
	})

	require.Error(t, execErr)
	assert.Equal(t, StateOpen, cb.GetState(), "a transport fault must still feed the breaker")
}
