package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_ClosedAllowsUntilThreshold(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 2, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	assert.True(t, cb.MayInvoke())
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.GetState())

	assert.True(t, cb.MayInvoke())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_OpenDeniesUntilRecoveryTimeout(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.True(t, cb.MayInvoke())
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.GetState())

	assert.False(t, cb.MayInvoke())

	time.Sleep(25 * time.Millisecond)
	assert.True(t, cb.MayInvoke(), "first call after recovery timeout should be granted a probe")
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.MayInvoke(), "a second concurrent call must not get another probe")
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Millisecond})
	require.NoError(t, err)

	cb.MayInvoke()
	cb.RecordFailure()
	time.Sleep(2 * time.Millisecond)

	require.True(t, cb.MayInvoke())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.MayInvoke())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Millisecond})
	require.NoError(t, err)

	cb.MayInvoke()
	cb.RecordFailure()
	time.Sleep(2 * time.Millisecond)

	require.True(t, cb.MayInvoke())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_StateChangeListenerFires(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "a1", FailureThreshold: 1, RecoveryTimeout: time.Minute})
	require.NoError(t, err)

	var transitions [][2]CircuitState
	cb.AddStateChangeListener(func(name string, from, to CircuitState) {
		transitions = append(transitions, [2]CircuitState{from, to})
	})

	cb.MayInvoke()
	cb.RecordFailure()

	require.Len(t, transitions, 1)
	assert.Equal(t, StateClosed, transitions[0][0])
	assert.Equal(t, StateOpen, transitions[0][1])
}
