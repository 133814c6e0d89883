package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// ErrNotFound is returned by Get/Delete for an unknown execution id.
var ErrNotFound = errors.New("execution not found")

// MemoryStore is an in-process ExecutionStore backed by a map, the default
// for a single-replica server or for tests. Not durable across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*workflow.WorkflowExecutionRecord
	order   []string // insertion order, for stable pagination
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*workflow.WorkflowExecutionRecord)}
}

func (m *MemoryStore) Put(_ context.Context, rec *workflow.WorkflowExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ExecutionID]; !exists {
		m.order = append(m.order, rec.ExecutionID)
	}
	m.records[rec.ExecutionID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, executionID string) (*workflow.WorkflowExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[executionID]
	if !ok {
		return nil, core.NewFrameworkError("store.memory.get", core.KindConfigInvalid, executionID, ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, status workflow.WorkflowState, page, pageSize int) ([]*workflow.WorkflowExecutionRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*workflow.WorkflowExecutionRecord, 0, len(m.order))
	for _, id := range m.order {
		rec := m.records[id]
		if status != "" && rec.State != status {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.Before(matched[j].StartedAt)
	})

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) Delete(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[executionID]; !ok {
		return core.NewFrameworkError("store.memory.delete", core.KindConfigInvalid, executionID, ErrNotFound)
	}
	delete(m.records, executionID)
	for i, id := range m.order {
		if id == executionID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
