package scheduler

import (
	"runtime/debug"
	"time"

	"github.com/praneethchandra/workflowforge/core"
)

// EventType enumerates the observer-visible event kinds.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventTaskReady         EventType = "task_ready"
	EventTaskStarted       EventType = "task_started"
	EventTaskRetrying      EventType = "task_retrying"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskFailed        EventType = "task_failed"
	EventTaskCancelled     EventType = "task_cancelled"
	EventBreakerOpened     EventType = "breaker_opened"
	EventBreakerHalfOpen   EventType = "breaker_half_open"
	EventBreakerClosed     EventType = "breaker_closed"
)

// Event is delivered to every registered observer for every state
// transition, in the order the scheduler observed them.
type Event struct {
	Type       EventType
	WorkflowID string
	TaskName   string
	Timestamp  time.Time
	Err        error
	Payload    map[string]interface{}
}

// Observer receives events asynchronously, off a bounded per-observer
// queue. An observer that panics or takes too long to drain its queue
// never blocks the scheduler or other observers.
type Observer func(Event)

const observerQueueSize = 256

type observerWorker struct {
	fn    Observer
	queue chan Event
}

// EventBus fans events out to observers in registration order. Dispatch to
// each observer runs on its own goroutine reading from a bounded channel;
// an overflowing queue drops the event and logs a warning rather than
// blocking the scheduler.
type EventBus struct {
	logger    core.Logger
	observers []*observerWorker
}

// NewEventBus builds an EventBus. Pass nil for logger to use a no-op.
func NewEventBus(logger core.Logger) *EventBus {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &EventBus{logger: logger}
}

// Subscribe registers an observer. Must be called before Publish starts
// (the bus is per-run and not meant for subscription races mid-flight).
func (b *EventBus) Subscribe(obs Observer) {
	w := &observerWorker{fn: obs, queue: make(chan Event, observerQueueSize)}
	b.observers = append(b.observers, w)
	go b.drain(w)
}

func (b *EventBus) drain(w *observerWorker) {
	for ev := range w.queue {
		b.deliver(w, ev)
	}
}

func (b *EventBus) deliver(w *observerWorker, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event bus observer panicked", map[string]interface{}{
				"event":      ev.Type,
				"panic":      r,
				"stack":      string(debug.Stack()),
			})
		}
	}()
	w.fn(ev)
}

// Publish delivers ev to every observer, in registration order, without
// waiting for any observer to finish handling it.
func (b *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, w := range b.observers {
		select {
		case w.queue <- ev:
		default:
			b.logger.Warn("event bus observer queue overflow, dropping event", map[string]interface{}{
				"event": ev.Type,
			})
		}
	}
}

// Close stops delivery to every observer's worker goroutine. Call once the
// run that owns this bus is terminal.
func (b *EventBus) Close() {
	for _, w := range b.observers {
		close(w.queue)
	}
}
