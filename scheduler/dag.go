package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/praneethchandra/workflowforge/workflow"
)

// dagNode tracks one task's dependency edges and readiness bookkeeping.
// Distinct from workflow.TaskExecutionRecord: the execution record is the
// observable state machine, this is the scheduler's internal adjacency
// structure for computing the ready set.
type dagNode struct {
	name         string
	dependsOn    []string
	dependents   []string
	declareOrder int
}

// dag is the dependency graph over a workflow's task names. Mutations to
// node status happen through the owning scheduler's execution records;
// this struct itself only answers structural questions (ready set,
// cascade targets, cycles) and is safe for concurrent reads once built.
type dag struct {
	mu    sync.RWMutex
	nodes map[string]*dagNode
	order []string
}

func newDAG(tasks []workflow.TaskDescriptor) *dag {
	d := &dag{nodes: make(map[string]*dagNode, len(tasks))}
	for i, t := range tasks {
		d.nodes[t.Name] = &dagNode{name: t.Name, dependsOn: append([]string(nil), t.DependsOn...), declareOrder: i}
		d.order = append(d.order, t.Name)
	}
	for _, n := range d.nodes {
		for _, dep := range n.dependsOn {
			if depNode, ok := d.nodes[dep]; ok {
				depNode.dependents = append(depNode.dependents, n.name)
			}
		}
	}
	return d
}

// validate checks acyclicity and that every dependency references a
// declared task name; agent-reference and enum validation happen in the
// config package, which owns the full CONFIG_INVALID surface.
func (d *dag) validate() error {
	for _, n := range d.nodes {
		for _, dep := range n.dependsOn {
			if _, ok := d.nodes[dep]; !ok {
				return fmt.Errorf("task %q depends on undeclared task %q", n.name, dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.nodes))
	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		for _, dep := range d.nodes[name].dependsOn {
			switch color[dep] {
			case gray:
				return fmt.Errorf("cycle detected involving task %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for name := range d.nodes {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// readyTasks returns PENDING task names whose dependencies are all
// COMPLETED, in declared order (the ordering this package promises for
// sequential runs; irrelevant but harmless for parallel runs).
func (d *dag) readyTasks(records map[string]*workflow.TaskExecutionRecord) []string {
	var ready []string
	for _, name := range d.order {
		rec := records[name]
		if rec.State != workflow.TaskPending {
			continue
		}
		n := d.nodes[name]
		allDepsComplete := true
		for _, dep := range n.dependsOn {
			if records[dep].State != workflow.TaskCompleted {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, name)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return d.nodes[ready[i]].declareOrder < d.nodes[ready[j]].declareOrder
	})
	return ready
}

// cascadeTargets returns the transitive dependents of failed, the set that
// must move to CANCELLED under CONTINUE_ON_FAILURE / PARTIAL_COMPLETION_ALLOWED
// unless failed's own continue_on_failure flag suppresses the cascade.
func (d *dag) cascadeTargets(failed string) []string {
	seen := map[string]bool{}
	var out []string
	var visit func(name string)
	visit = func(name string) {
		for _, dep := range d.nodes[name].dependents {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				visit(dep)
			}
		}
	}
	visit(failed)
	return out
}
