// Package scheduler drives a workflow's DAG of tasks to completion: it
// resolves dependency readiness, dispatches tasks through their agent's
// resilience pipeline, applies the configured failure strategy, and
// reports every state transition on its event bus.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/praneethchandra/workflowforge/agent"
	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/resilience"
	"github.com/praneethchandra/workflowforge/telemetry"
	"github.com/praneethchandra/workflowforge/workflow"
)

// Scheduler runs one workflow descriptor to a terminal
// WorkflowExecutionRecord. A Scheduler is stateless between runs; all
// per-run state (records, bindings, in-flight count) lives on the Run
// call's stack.
type Scheduler struct {
	logger  core.Logger
	bus     *EventBus
	factory *agent.Factory
	metrics telemetry.MetricsCollector
}

// NewScheduler builds a Scheduler. Pass nil for logger to use a no-op; bus
// and factory must not be nil. Every agent's circuit breaker reports to a
// no-op MetricsCollector until WithMetrics wires a real one.
func NewScheduler(logger core.Logger, bus *EventBus, factory *agent.Factory) *Scheduler {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Scheduler{logger: logger, bus: bus, factory: factory, metrics: telemetry.NoopMetrics{}}
}

// WithMetrics swaps the MetricsCollector every agent binding's circuit
// breaker reports counters to. A nil m leaves the existing collector (the
// no-op default, unless already set) in place. Returns s for chaining.
func (s *Scheduler) WithMetrics(m telemetry.MetricsCollector) *Scheduler {
	if m != nil {
		s.metrics = m
	}
	return s
}

// taskOutcome is the only channel traffic a task's worker goroutine
// produces; the scheduler's single control loop is the sole mutator of
// TaskExecutionRecord state. Workers report outcomes, they never touch
// the shared records map.
type taskOutcome struct {
	name    string
	attempt int
	result  map[string]interface{}
	err     error
}

// Run blocks until wf is terminal. It never returns an error for agent or
// task failures — those are represented in the returned record's per-task
// state. It returns an error only for a CONFIG_INVALID condition detected
// up front (a cycle, an undeclared dependency, an agent descriptor the
// factory cannot build, or a task naming an undeclared agent).
func (s *Scheduler) Run(ctx context.Context, wf workflow.WorkflowDescriptor) (*workflow.WorkflowExecutionRecord, error) {
	return s.RunWithID(ctx, wf, uuid.New().String())
}

// RunWithID is Run with the execution id supplied by the caller instead of
// generated internally. The REST control surface's submit handler needs
// the id before the run finishes (to hand back in its immediate "queued"
// response), so it generates one up front and passes it here rather than
// learning it only from the eventual WorkflowExecutionRecord.
func (s *Scheduler) RunWithID(ctx context.Context, wf workflow.WorkflowDescriptor, execID string) (*workflow.WorkflowExecutionRecord, error) {
	dg := newDAG(wf.Tasks)
	if err := dg.validate(); err != nil {
		return nil, core.NewFrameworkErrorMsg("scheduler.run", core.KindConfigInvalid, wf.Name, err.Error())
	}

	bindings := make(map[string]*agentBinding, len(wf.Agents))
	for _, desc := range wf.Agents {
		b, err := s.buildBinding(desc)
		if err != nil {
			return nil, err
		}
		bindings[desc.Name] = b
	}

	taskByName := make(map[string]workflow.TaskDescriptor, len(wf.Tasks))
	for _, t := range wf.Tasks {
		if _, ok := bindings[t.AgentName]; !ok {
			return nil, core.NewFrameworkErrorMsg("scheduler.run", core.KindConfigInvalid, t.Name,
				fmt.Sprintf("task %q references undeclared agent %q", t.Name, t.AgentName))
		}
		taskByName[t.Name] = t
	}

	records := make(map[string]*workflow.TaskExecutionRecord, len(wf.Tasks))
	for _, t := range wf.Tasks {
		records[t.Name] = &workflow.TaskExecutionRecord{TaskName: t.Name, WorkflowID: execID, State: workflow.TaskPending}
	}

	wfRec := &workflow.WorkflowExecutionRecord{
		ExecutionID:  execID,
		WorkflowName: wf.Name,
		State:        workflow.WorkflowRunning,
		StartedAt:    time.Now(),
		TotalTasks:   len(wf.Tasks),
		Tasks:        records,
	}

	spanCtx, endWorkflowSpan := telemetry.StartLinkedSpan(ctx, "workflow.execute", "", "", map[string]string{
		"workflow.name": wf.Name,
		"workflow.id":   execID,
	})
	defer endWorkflowSpan()
	telemetry.SetSpanAttributes(spanCtx,
		attribute.String("workflow.name", wf.Name),
		attribute.Int("workflow.task_count", len(wf.Tasks)),
	)
	telemetry.AddSpanEvent(spanCtx, "workflow_execution_started",
		attribute.String("workflow_id", execID),
		attribute.Int("task_count", len(wf.Tasks)),
	)

	s.bus.Publish(Event{Type: EventWorkflowStarted, WorkflowID: execID})

	strategy := wf.FailureStrategy
	if strategy == "" {
		strategy = workflow.StopOnFirstFailure
	}

	runCtx := spanCtx
	if wf.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(spanCtx, time.Duration(wf.GlobalTimeout*float64(time.Second)))
		defer cancel()
	}

	out := make(chan taskOutcome, len(wf.Tasks))
	stopRequested := false
	inFlight := 0

	dispatch := func(name string) {
		td := taskByName[name]
		rec := records[name]

		rec.State = workflow.TaskReady
		s.bus.Publish(Event{Type: EventTaskReady, WorkflowID: execID, TaskName: name})

		rec.State = workflow.TaskRunning
		now := time.Now()
		rec.StartedAt = &now
		s.bus.Publish(Event{Type: EventTaskStarted, WorkflowID: execID, TaskName: name})

		params := resolveParams(td.Params, records)
		b := bindings[td.AgentName]
		inFlight++
		go s.executeTask(runCtx, execID, td, b, params, out)
	}

	for !allTerminal(records) {
		if !stopRequested {
			ready := dg.readyTasks(records)
			for _, name := range ready {
				if !wf.ParallelExecution && inFlight > 0 {
					break
				}
				dispatch(name)
			}
		}

		if inFlight == 0 {
			// Nothing running and nothing dispatched this round: either a
			// STOP_ON_FIRST_FAILURE halt drained its in-flight batch, or the
			// remaining PENDING tasks can never become ready (their
			// dependencies failed upstream). Either way they are CANCELLED.
			cancelRemaining(records, execID, s.bus)
			break
		}

		outcome := <-out
		inFlight--
		s.applyOutcome(dg, records, taskByName, outcome, execID, strategy, &stopRequested)
	}

	completed, failed, cancelled := tally(records)
	wfRec.CompletedTasks = completed
	wfRec.FailedTasks = failed
	wfRec.CancelledTasks = cancelled
	wfRec.EndedAt = time.Now()

	switch {
	case ctx.Err() != nil:
		// The caller's own context was cancelled (not a global-timeout
		// context this Run derived) — an explicit external cancellation.
		wfRec.State = workflow.WorkflowCancelled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		wfRec.State = workflow.WorkflowFailed
	default:
		wfRec.State = computeWorkflowState(strategy, len(wf.Tasks), completed, failed, cancelled)
	}

	duration := wfRec.EndedAt.Sub(wfRec.StartedAt)
	if wfRec.State == workflow.WorkflowCompleted || wfRec.State == workflow.WorkflowPartiallyCompleted {
		telemetry.AddSpanEvent(spanCtx, "workflow_execution_completed",
			attribute.String("workflow_id", execID),
			attribute.String("status", string(wfRec.State)),
			attribute.Int64("duration_ms", duration.Milliseconds()),
		)
		s.bus.Publish(Event{Type: EventWorkflowCompleted, WorkflowID: execID, Payload: map[string]interface{}{"status": wfRec.State}})
	} else {
		workflowErr := fmt.Errorf("workflow %s ended in state %s (%d/%d tasks completed)", wf.Name, wfRec.State, completed, wfRec.TotalTasks)
		telemetry.RecordSpanError(spanCtx, workflowErr)
		telemetry.AddSpanEvent(spanCtx, "workflow_execution_failed",
			attribute.String("workflow_id", execID),
			attribute.String("status", string(wfRec.State)),
		)
		s.bus.Publish(Event{Type: EventWorkflowFailed, WorkflowID: execID, Payload: map[string]interface{}{"status": wfRec.State}})
	}

	return wfRec, nil
}

// applyOutcome is the single place a task's terminal state is written,
// running entirely on the scheduler's control-flow goroutine.
func (s *Scheduler) applyOutcome(
	dg *dag,
	records map[string]*workflow.TaskExecutionRecord,
	taskByName map[string]workflow.TaskDescriptor,
	outcome taskOutcome,
	execID string,
	strategy workflow.FailureStrategy,
	stopRequested *bool,
) {
	rec := records[outcome.name]
	end := time.Now()
	rec.EndedAt = &end
	rec.Attempt = outcome.attempt

	switch {
	case outcome.err == nil:
		rec.State = workflow.TaskCompleted
		rec.Result = outcome.result
		s.bus.Publish(Event{Type: EventTaskCompleted, WorkflowID: execID, TaskName: outcome.name, Payload: outcome.result})
		return
	case core.IsCancelled(outcome.err):
		rec.State = workflow.TaskCancelled
		rec.SetError(outcome.err)
		s.bus.Publish(Event{Type: EventTaskCancelled, WorkflowID: execID, TaskName: outcome.name, Err: outcome.err})
		return
	default:
		rec.State = workflow.TaskFailed
		rec.SetError(outcome.err)
		s.bus.Publish(Event{Type: EventTaskFailed, WorkflowID: execID, TaskName: outcome.name, Err: outcome.err})
	}

	td := taskByName[outcome.name]
	if td.ContinueOnFailure {
		return
	}
	if strategy == workflow.StopOnFirstFailure {
		*stopRequested = true
		return
	}
	for _, dep := range dg.cascadeTargets(outcome.name) {
		depRec := records[dep]
		if depRec.State == workflow.TaskPending {
			depRec.State = workflow.TaskCancelled
			now := time.Now()
			depRec.EndedAt = &now
			s.bus.Publish(Event{Type: EventTaskCancelled, WorkflowID: execID, TaskName: dep})
		}
	}
}

// executeTask runs the resilience pipeline for one task and reports the
// outcome; it never mutates shared scheduler state.
func (s *Scheduler) executeTask(ctx context.Context, wfID string, td workflow.TaskDescriptor, b *agentBinding, params map[string]interface{}, out chan<- taskOutcome) {
	ctx, endTaskSpan := telemetry.StartLinkedSpan(ctx, "task.dispatch", "", "", map[string]string{
		"task.name":  td.Name,
		"task.agent": td.AgentName,
	})
	defer endTaskSpan()
	telemetry.AddSpanEvent(ctx, "task_execution_started",
		attribute.String("task_name", td.Name),
		attribute.String("agent_name", td.AgentName),
	)

	if b.sem != nil {
		select {
		case b.sem <- struct{}{}:
			defer func() { <-b.sem }()
		case <-ctx.Done():
			err := core.NewFrameworkError("scheduler.execute_task", core.KindCancelled, td.Name, ctx.Err())
			telemetry.RecordSpanError(ctx, err)
			out <- taskOutcome{name: td.Name, err: err}
			return
		}
	}

	deadline := b.deadline
	if td.Deadline != nil {
		deadline = time.Duration(*td.Deadline * float64(time.Second))
	}

	retryCfg := b.retry
	if td.Retry != nil {
		retryCfg = toRetryConfig(*td.Retry)
	}

	lastAttempt := 0
	pipeline := &resilience.Pipeline{
		Breaker: b.breaker,
		Retry:   retryCfg,
		Timeout: deadline,
		OnAttempt: func(attempt int) {
			lastAttempt = attempt
			if attempt > 1 {
				telemetry.AddSpanEvent(ctx, "task_retry_attempt", attribute.Int("attempt", attempt))
				s.bus.Publish(Event{Type: EventTaskRetrying, WorkflowID: wfID, TaskName: td.Name, Payload: map[string]interface{}{"attempt": attempt}})
			}
		},
	}

	result, err := pipeline.Invoke(ctx, invokeAgent(b.agent, td.Name), td.Action, params)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		telemetry.AddSpanEvent(ctx, "task_execution_failed", attribute.String("task_name", td.Name))
	} else {
		telemetry.AddSpanEvent(ctx, "task_execution_completed",
			attribute.String("task_name", td.Name),
			attribute.Int("attempts", lastAttempt),
		)
	}
	out <- taskOutcome{name: td.Name, attempt: lastAttempt, result: result, err: err}
}

// invokeAgent adapts an Agent's InvokeRaw (which returns the uniform
// AgentResponse) to resilience.Invoker's plain (map, error) shape, folding
// a response with Success=false into a REMOTE_REJECTION error, which the
// pipeline's retry classification treats as non-retryable.
func invokeAgent(a agent.Agent, taskName string) resilience.Invoker {
	return func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
		resp, err := a.InvokeRaw(ctx, action, params)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, core.NewFrameworkErrorMsg("agent.invoke", core.KindRemoteRejection, taskName, resp.Error)
		}
		return resp.Result, nil
	}
}

func tally(records map[string]*workflow.TaskExecutionRecord) (completed, failed, cancelled int) {
	for _, rec := range records {
		switch rec.State {
		case workflow.TaskCompleted:
			completed++
		case workflow.TaskFailed:
			failed++
		case workflow.TaskCancelled:
			cancelled++
		}
	}
	return
}
