// Package store persists workflow execution records for the REST control
// surface's GET /workflows/{id} and GET /workflows list endpoints. A run
// itself never depends on a store — the scheduler returns a complete
// WorkflowExecutionRecord synchronously — but a long-running server process
// wants a place to keep finished and in-flight records addressable by id
// across requests, and optionally across process restarts.
package store

import (
	"context"

	"github.com/praneethchandra/workflowforge/workflow"
)

// ExecutionStore is the persistence contract the REST surface's handlers
// depend on, never a concrete backend. An in-memory MemoryStore is the
// zero-configuration default; RedisExecutionStore is the durable
// alternative for a multi-replica server.
type ExecutionStore interface {
	Put(ctx context.Context, rec *workflow.WorkflowExecutionRecord) error
	Get(ctx context.Context, executionID string) (*workflow.WorkflowExecutionRecord, error)
	List(ctx context.Context, status workflow.WorkflowState, page, pageSize int) ([]*workflow.WorkflowExecutionRecord, int, error)
	Delete(ctx context.Context, executionID string) error
}
