package scheduler

import (
	"strings"
	"time"

	"github.com/praneethchandra/workflowforge/agent"
	"github.com/praneethchandra/workflowforge/resilience"
	"github.com/praneethchandra/workflowforge/workflow"
)

// agentBinding pairs a constructed Agent with the resilience primitives
// bound to it: one breaker and one optional concurrency semaphore per
// agent descriptor, shared across every task that names it.
type agentBinding struct {
	agent    agent.Agent
	breaker  *resilience.CircuitBreaker
	retry    *resilience.RetryConfig
	deadline time.Duration
	sem      chan struct{} // nil when MaxConcurrency == 0 (unbounded)
}

func (s *Scheduler) buildBinding(desc workflow.AgentDescriptor) (*agentBinding, error) {
	built, err := s.factory.Build(desc)
	if err != nil {
		return nil, err
	}

	cb, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             desc.Name,
		FailureThreshold: desc.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(desc.Breaker.RecoveryTimeout * float64(time.Second)),
		Logger:           s.logger,
		Metrics:          s.metrics,
	})
	if err != nil {
		return nil, err
	}
	cb.AddStateChangeListener(func(name string, from, to resilience.CircuitState) {
		s.bus.Publish(Event{Type: breakerEventFor(to), Payload: map[string]interface{}{"agent": name}})
	})

	var sem chan struct{}
	if desc.MaxConcurrency > 0 {
		sem = make(chan struct{}, desc.MaxConcurrency)
	}

	return &agentBinding{
		agent:    built,
		breaker:  cb,
		retry:    toRetryConfig(desc.Retry),
		deadline: time.Duration(desc.Deadline * float64(time.Second)),
		sem:      sem,
	}, nil
}

func breakerEventFor(to resilience.CircuitState) EventType {
	switch to {
	case resilience.StateOpen:
		return EventBreakerOpened
	case resilience.StateHalfOpen:
		return EventBreakerHalfOpen
	default:
		return EventBreakerClosed
	}
}

func toRetryConfig(rp workflow.RetryPolicy) *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if rp.MaxAttempts > 0 {
		cfg.MaxAttempts = rp.MaxAttempts
	}
	if rp.InitialDelay > 0 {
		cfg.InitialDelay = time.Duration(rp.InitialDelay * float64(time.Second))
	}
	if rp.MaxDelay > 0 {
		cfg.MaxDelay = time.Duration(rp.MaxDelay * float64(time.Second))
	}
	if rp.Base > 0 {
		cfg.BackoffFactor = rp.Base
	}
	cfg.JitterEnabled = rp.JitterEnabled
	return cfg
}

// resolveParams substitutes "${tasks.<name>.result.<path>}" string values
// against already-terminal task results. A reference to a task that never
// completed (cancelled or failed, its failure not cascaded thanks to its
// own continue_on_failure) resolves to nil rather than erroring, matching
// the "may observe a missing result" contract.
func resolveParams(params map[string]interface{}, records map[string]*workflow.TaskExecutionRecord) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = resolveValue(v, records)
	}
	return out
}

func resolveValue(v interface{}, records map[string]*workflow.TaskExecutionRecord) interface{} {
	switch t := v.(type) {
	case string:
		if ref, ok := parseBinding(t); ok {
			return lookupBinding(ref, records)
		}
		return t
	case map[string]interface{}:
		return resolveParams(t, records)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = resolveValue(e, records)
		}
		return out
	default:
		return v
	}
}

type taskResultRef struct {
	task string
	path []string
}

// parseBinding recognizes "${tasks.<name>.result.<path>}"; <path> may
// itself contain dots, navigating nested maps in the referenced result.
func parseBinding(s string) (taskResultRef, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return taskResultRef{}, false
	}
	inner := s[2 : len(s)-1]
	const prefix = "tasks."
	if !strings.HasPrefix(inner, prefix) {
		return taskResultRef{}, false
	}
	rest := inner[len(prefix):]
	parts := strings.SplitN(rest, ".result.", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return taskResultRef{}, false
	}
	return taskResultRef{task: parts[0], path: strings.Split(parts[1], ".")}, true
}

func lookupBinding(ref taskResultRef, records map[string]*workflow.TaskExecutionRecord) interface{} {
	rec, ok := records[ref.task]
	if !ok || rec.Result == nil {
		return nil
	}
	var cur interface{} = rec.Result
	for _, segment := range ref.path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return cur
}

// computeWorkflowState folds the terminal task tallies into the workflow's
// terminal state.
func computeWorkflowState(strategy workflow.FailureStrategy, total, completed, failed, cancelled int) workflow.WorkflowState {
	if completed == total {
		return workflow.WorkflowCompleted
	}
	if completed == 0 {
		return workflow.WorkflowFailed
	}
	if strategy == workflow.PartialCompletionAllowed && failed > 0 {
		return workflow.WorkflowPartiallyCompleted
	}
	return workflow.WorkflowFailed
}

func allTerminal(records map[string]*workflow.TaskExecutionRecord) bool {
	for _, rec := range records {
		if !rec.State.IsTerminal() {
			return false
		}
	}
	return true
}

func cancelRemaining(records map[string]*workflow.TaskExecutionRecord, wfID string, bus *EventBus) {
	for name, rec := range records {
		if !rec.State.IsTerminal() {
			rec.State = workflow.TaskCancelled
			now := time.Now()
			rec.EndedAt = &now
			bus.Publish(Event{Type: EventTaskCancelled, WorkflowID: wfID, TaskName: name})
		}
	}
}
