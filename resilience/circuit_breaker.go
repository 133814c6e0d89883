// Package resilience implements the breaker + retry + timeout pipeline
// wrapped around every agent invocation.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/telemetry"
)

// CircuitState is one of the three breaker states.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a single agent's breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures in CLOSED before tripping to OPEN
	RecoveryTimeout  time.Duration // time OPEN must elapse before a probe is allowed
	Logger           core.Logger
	Metrics          telemetry.MetricsCollector
}

// DefaultConfig returns a small failure threshold and a short recovery
// window, suitable when a descriptor leaves the breaker policy unset.
func DefaultConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

func (c CircuitBreakerConfig) String() string {
	return fmt.Sprintf("CircuitBreakerConfig{Name:%s, FailureThreshold:%d, RecoveryTimeout:%s}", c.Name, c.FailureThreshold, c.RecoveryTimeout)
}

// StateChangeListener is notified whenever the breaker transitions state.
type StateChangeListener func(name string, from, to CircuitState)

// CircuitBreaker implements the three-state breaker from the resilience
// pipeline: one instance per agent, shared across all of that agent's
// concurrent invocations. Counters are mutated only under mu, which never
// spans an external call.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	openedAt        time.Time
	halfOpenClaimed bool // a single probe is in flight in HALF_OPEN

	listeners []StateChangeListener
}

// NewCircuitBreaker validates and defaults config, returning a breaker
// ready for concurrent use.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	if config.Logger == nil {
		config.Logger = core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.NoopMetrics{}
	}
	return &CircuitBreaker{config: config, state: StateClosed}, nil
}

// AddStateChangeListener registers a callback invoked synchronously from
// within the breaker's mutex-protected transition. Keep listeners fast;
// they exist so the event bus can learn about breaker_opened /
// breaker_half_open / breaker_closed without the breaker depending on it.
func (cb *CircuitBreaker) AddStateChangeListener(l StateChangeListener) {
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, l)
	cb.mu.Unlock()
}

// MayInvoke reports whether a call is currently permitted. In CLOSED,
// always. In OPEN, the first caller whose check lands after RecoveryTimeout has
// elapsed atomically transitions the breaker to HALF_OPEN and is granted
// the probe; everyone else sees false until the probe's outcome is
// recorded.
func (cb *CircuitBreaker) MayInvoke() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenClaimed = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenClaimed {
			return false
		}
		cb.halfOpenClaimed = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call. Must only follow a
// MayInvoke()==true call on this breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.transitionLocked(StateClosed)
		cb.failureCount = 0
		cb.halfOpenClaimed = false
	}
	cb.config.Metrics.IncCounter(context.Background(), "breaker.success", map[string]string{"breaker": cb.config.Name})
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
			cb.openedAt = time.Now()
		}
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
		cb.openedAt = time.Now()
		cb.halfOpenClaimed = false
	}
	cb.config.Metrics.IncCounter(context.Background(), "breaker.failure", map[string]string{"breaker": cb.config.Name})
}

// releaseProbe returns an unconsumed HALF_OPEN probe slot when a call's
// outcome says nothing about transport health (a cancellation mid-probe).
// No-op in any other state.
func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.halfOpenClaimed = false
	}
}

// transitionLocked must be called with mu held.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.config.Logger.Info("circuit breaker state change", map[string]interface{}{
		"breaker": cb.config.Name,
		"from":    from.String(),
		"to":      to.String(),
	})
	cb.config.Metrics.IncCounter(context.Background(), "breaker.state_change", map[string]string{
		"breaker": cb.config.Name,
		"to":      to.String(),
	})
	for _, l := range cb.listeners {
		l(cb.config.Name, from, to)
	}
}

// GetState returns the current state (for tests and status endpoints).
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to CLOSED with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
	cb.failureCount = 0
	cb.halfOpenClaimed = false
}
