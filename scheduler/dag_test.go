package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praneethchandra/workflowforge/workflow"
)

func recordsFor(d *dag, completed ...string) map[string]*workflow.TaskExecutionRecord {
	done := map[string]bool{}
	for _, c := range completed {
		done[c] = true
	}
	records := make(map[string]*workflow.TaskExecutionRecord, len(d.order))
	for _, name := range d.order {
		state := workflow.TaskPending
		if done[name] {
			state = workflow.TaskCompleted
		}
		records[name] = &workflow.TaskExecutionRecord{TaskName: name, State: state}
	}
	return records
}

func TestDAG_ValidateDetectsCycle(t *testing.T) {
	d := newDAG([]workflow.TaskDescriptor{
		{Name: "t1", DependsOn: []string{"t2"}},
		{Name: "t2", DependsOn: []string{"t1"}},
	})
	err := d.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDAG_ValidateDetectsUndeclaredDependency(t *testing.T) {
	d := newDAG([]workflow.TaskDescriptor{
		{Name: "t1", DependsOn: []string{"ghost"}},
	})
	err := d.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared")
}

func TestDAG_ValidateAcceptsDiamond(t *testing.T) {
	d := newDAG([]workflow.TaskDescriptor{
		{Name: "t1"},
		{Name: "t2", DependsOn: []string{"t1"}},
		{Name: "t3", DependsOn: []string{"t1"}},
		{Name: "t4", DependsOn: []string{"t2", "t3"}},
	})
	assert.NoError(t, d.validate())
}

func TestDAG_ReadyTasksRespectsDeclaredOrderAndDeps(t *testing.T) {
	d := newDAG([]workflow.TaskDescriptor{
		{Name: "t1"},
		{Name: "t2", DependsOn: []string{"t1"}},
		{Name: "t3"},
	})

	ready := d.readyTasks(recordsFor(d))
	assert.Equal(t, []string{"t1", "t3"}, ready)

	ready = d.readyTasks(recordsFor(d, "t1", "t3"))
	assert.Equal(t, []string{"t2"}, ready)
}

func TestDAG_CascadeTargetsFindsTransitiveDependents(t *testing.T) {
	d := newDAG([]workflow.TaskDescriptor{
		{Name: "t1"},
		{Name: "t2", DependsOn: []string{"t1"}},
		{Name: "t3", DependsOn: []string{"t2"}},
		{Name: "t4"},
	})
	targets := d.cascadeTargets("t1")
	assert.ElementsMatch(t, []string{"t2", "t3"}, targets)
}
