// Package workflow defines the data model the scheduler operates on:
// agent/task/workflow descriptors (immutable once validated) and the
// mutable execution records the scheduler mutates as a run progresses.
package workflow

import "time"

// AgentVariant tags which transport an agent descriptor speaks.
type AgentVariant string

const (
	VariantChatLLM     AgentVariant = "CHAT_LLM"
	VariantJSONRPCTool AgentVariant = "JSONRPC_TOOL"
	VariantGenericHTTP AgentVariant = "GENERIC_HTTP"
	VariantCustom      AgentVariant = "CUSTOM"
)

// AuthType tags which authentication bundle an agent carries.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
)

// AuthBundle carries credentials for exactly one AuthType.
type AuthBundle struct {
	Type AuthType `json:"type" yaml:"type"`

	Token string `json:"token,omitempty" yaml:"token,omitempty"` // bearer

	Key    string `json:"key,omitempty" yaml:"key,omitempty"`       // api_key
	Header string `json:"header,omitempty" yaml:"header,omitempty"` // api_key, defaults to X-API-Key

	Username string `json:"username,omitempty" yaml:"username,omitempty"` // basic
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// RetryPolicy mirrors resilience.RetryConfig at the descriptor level, kept
// as plain fields here so the config package can decode it directly from
// YAML/JSON without importing the resilience package's duration-typed
// struct.
type RetryPolicy struct {
	MaxAttempts   int     `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay  float64 `json:"initial_delay" yaml:"initial_delay"` // seconds
	MaxDelay      float64 `json:"max_delay" yaml:"max_delay"`         // seconds
	Base          float64 `json:"base" yaml:"base"`
	JitterEnabled bool    `json:"jitter" yaml:"jitter"`
}

// BreakerPolicy mirrors resilience.CircuitBreakerConfig at the descriptor
// level.
type BreakerPolicy struct {
	FailureThreshold int     `json:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeout  float64 `json:"recovery_timeout" yaml:"recovery_timeout"` // seconds
}

// AgentDescriptor is immutable once the config validator accepts it.
type AgentDescriptor struct {
	Name     string                 `json:"name" yaml:"name"`
	Variant  AgentVariant           `json:"variant" yaml:"variant"`
	Endpoint string                 `json:"endpoint" yaml:"endpoint"`
	Auth     *AuthBundle            `json:"auth,omitempty" yaml:"auth,omitempty"`
	Deadline float64                `json:"deadline" yaml:"deadline"` // seconds
	Retry    RetryPolicy            `json:"retry" yaml:"retry"`
	Breaker  BreakerPolicy          `json:"breaker" yaml:"breaker"`
	Params   map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`

	// MaxConcurrency bounds how many invocations of this agent the
	// scheduler will run at once, independent of the workflow's
	// parallel_execution flag. Zero means unbounded.
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// TaskDescriptor is immutable once the config validator accepts it.
type TaskDescriptor struct {
	Name               string                 `json:"name" yaml:"name"`
	AgentName          string                 `json:"agent_name" yaml:"agent_name"`
	Action             string                 `json:"action" yaml:"action"`
	Params             map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	DependsOn          []string               `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ContinueOnFailure  bool                   `json:"continue_on_failure,omitempty" yaml:"continue_on_failure,omitempty"`
	Deadline           *float64               `json:"deadline,omitempty" yaml:"deadline,omitempty"` // overrides agent's
	Retry              *RetryPolicy           `json:"retry,omitempty" yaml:"retry,omitempty"`       // complete override when present
}

// FailureStrategy is the workflow-level policy applied after a FAILED task.
type FailureStrategy string

const (
	StopOnFirstFailure       FailureStrategy = "STOP_ON_FIRST_FAILURE"
	ContinueOnFailure        FailureStrategy = "CONTINUE_ON_FAILURE"
	PartialCompletionAllowed FailureStrategy = "PARTIAL_COMPLETION_ALLOWED"
)

// WorkflowDescriptor is immutable once the config validator accepts it.
type WorkflowDescriptor struct {
	Name              string            `json:"name" yaml:"name"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	Version           string            `json:"version,omitempty" yaml:"version,omitempty"`
	ParallelExecution bool              `json:"parallel_execution,omitempty" yaml:"parallel_execution,omitempty"`
	FailureStrategy   FailureStrategy   `json:"failure_strategy,omitempty" yaml:"failure_strategy,omitempty"`
	GlobalTimeout     float64           `json:"global_timeout,omitempty" yaml:"global_timeout,omitempty"` // seconds, 0 = none
	Agents            []AgentDescriptor `json:"agents" yaml:"agents"`
	Tasks             []TaskDescriptor  `json:"tasks" yaml:"tasks"`
}

// TaskState is a task execution record's point in the state machine.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskReady     TaskState = "READY"
	TaskRunning   TaskState = "RUNNING"
	TaskRetrying  TaskState = "RETRYING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskCancelled TaskState = "CANCELLED"
)

// IsTerminal reports whether s is one of the task's terminal states.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskExecutionRecord is the mutable per-task run-state the scheduler owns
// for the duration of a run. Error carries the live error value for
// in-process classification (errors.Is, core.KindOf); ErrorMessage is its
// serializable shadow, set alongside it, so a record survives the JSON
// round trip through the REST surface and the redis store.
type TaskExecutionRecord struct {
	TaskName     string                 `json:"task_name"`
	WorkflowID   string                 `json:"workflow_id"`
	State        TaskState              `json:"state"`
	Attempt      int                    `json:"attempt"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	EndedAt      *time.Time             `json:"ended_at,omitempty"`
	Result       map[string]interface{} `json:"result,omitempty"`
	Error        error                  `json:"-"`
	ErrorMessage string                 `json:"error,omitempty"`
}

// SetError records err as the task's terminal error, keeping the
// serializable message in sync.
func (r *TaskExecutionRecord) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// WorkflowState is a workflow execution record's terminal/non-terminal
// state.
type WorkflowState string

const (
	WorkflowPending            WorkflowState = "PENDING"
	WorkflowRunning            WorkflowState = "RUNNING"
	WorkflowCompleted          WorkflowState = "COMPLETED"
	WorkflowPartiallyCompleted WorkflowState = "PARTIALLY_COMPLETED"
	WorkflowFailed             WorkflowState = "FAILED"
	WorkflowCancelled          WorkflowState = "CANCELLED"
)

// WorkflowExecutionRecord is the mutable, then-frozen-and-returned result
// of a scheduler run.
type WorkflowExecutionRecord struct {
	ExecutionID    string                          `json:"execution_id"`
	WorkflowName   string                          `json:"workflow_name"`
	State          WorkflowState                   `json:"state"`
	StartedAt      time.Time                       `json:"started_at"`
	EndedAt        time.Time                       `json:"ended_at"`
	TotalTasks     int                             `json:"total_tasks"`
	CompletedTasks int                             `json:"completed_tasks"`
	FailedTasks    int                             `json:"failed_tasks"`
	CancelledTasks int                             `json:"cancelled_tasks"`
	Tasks          map[string]*TaskExecutionRecord `json:"tasks"`
}

// AgentResponse is the uniform value every agent variant returns.
type AgentResponse struct {
	Success  bool                   `json:"success"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Latency  time.Duration          `json:"latency_ns"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
