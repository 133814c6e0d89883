// Package config decodes workflow documents (YAML or JSON) into
// workflow.WorkflowDescriptor and validates them before a scheduler run
// ever starts.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// LoadWorkflow decodes a workflow document. JSON is valid YAML, so one
// decoder handles both encodings.
func LoadWorkflow(data []byte) (workflow.WorkflowDescriptor, error) {
	var wf workflow.WorkflowDescriptor
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return workflow.WorkflowDescriptor{}, core.NewFrameworkError("config.load", core.KindConfigInvalid, "", err)
	}
	if wf.FailureStrategy == "" {
		wf.FailureStrategy = workflow.StopOnFirstFailure
	}
	return wf, nil
}

// Validate checks wf against every rule in the expanded config-validator
// contract and collects every violation into a single CONFIG_INVALID
// error rather than failing on the first one found, so a caller sees the
// whole list in one pass. known reports whether a CUSTOM agent variant
// name is registered (nil is treated as "nothing registered").
func Validate(wf workflow.WorkflowDescriptor, known func(name string) bool) error {
	var problems []string

	if strings.TrimSpace(wf.Name) == "" {
		problems = append(problems, "workflow name is required")
	}

	switch wf.FailureStrategy {
	case "", workflow.StopOnFirstFailure, workflow.ContinueOnFailure, workflow.PartialCompletionAllowed:
	default:
		problems = append(problems, fmt.Sprintf("unknown failure_strategy %q", wf.FailureStrategy))
	}

	agentNames := make(map[string]bool, len(wf.Agents))
	for i, a := range wf.Agents {
		if a.Name == "" {
			problems = append(problems, fmt.Sprintf("agents[%d]: name is required", i))
			continue
		}
		if agentNames[a.Name] {
			problems = append(problems, fmt.Sprintf("agent name %q declared more than once", a.Name))
		}
		agentNames[a.Name] = true
		problems = append(problems, validateAgent(a, known)...)
	}

	taskNames := make(map[string]bool, len(wf.Tasks))
	for i, t := range wf.Tasks {
		if t.Name == "" {
			problems = append(problems, fmt.Sprintf("tasks[%d]: name is required", i))
			continue
		}
		if taskNames[t.Name] {
			problems = append(problems, fmt.Sprintf("task name %q declared more than once", t.Name))
		}
		taskNames[t.Name] = true

		if t.AgentName == "" {
			problems = append(problems, fmt.Sprintf("task %q: agent_name is required", t.Name))
		} else if !agentNames[t.AgentName] {
			problems = append(problems, fmt.Sprintf("task %q references undeclared agent %q", t.Name, t.AgentName))
		}
		if t.Retry != nil {
			problems = append(problems, validateRetry(fmt.Sprintf("task %q retry", t.Name), *t.Retry)...)
		}
	}

	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			if !taskNames[dep] {
				problems = append(problems, fmt.Sprintf("task %q depends on undeclared task %q", t.Name, dep))
			}
		}
	}

	if len(wf.Tasks) > 0 && len(problems) == 0 {
		problems = append(problems, detectCycle(wf.Tasks)...)
	}

	if len(problems) == 0 {
		return nil
	}
	return core.NewFrameworkErrorMsg("config.validate", core.KindConfigInvalid, wf.Name, strings.Join(problems, "; "))
}

func validateAgent(a workflow.AgentDescriptor, known func(name string) bool) []string {
	var problems []string
	switch a.Variant {
	case workflow.VariantChatLLM, workflow.VariantJSONRPCTool, workflow.VariantGenericHTTP:
	case workflow.VariantCustom:
		name, _ := a.Params["custom_variant"].(string)
		if name == "" {
			problems = append(problems, fmt.Sprintf("agent %q: variant CUSTOM requires params.custom_variant", a.Name))
		} else if known == nil || !known(name) {
			problems = append(problems, fmt.Sprintf("agent %q: custom_variant %q is not registered", a.Name, name))
		}
	default:
		problems = append(problems, fmt.Sprintf("agent %q: unknown variant %q", a.Name, a.Variant))
	}

	if a.Endpoint == "" {
		problems = append(problems, fmt.Sprintf("agent %q: endpoint is required", a.Name))
	}
	if a.Deadline < 0 {
		problems = append(problems, fmt.Sprintf("agent %q: deadline must be >= 0", a.Name))
	}
	if a.Breaker.FailureThreshold < 0 {
		problems = append(problems, fmt.Sprintf("agent %q: breaker.failure_threshold must be >= 0", a.Name))
	}
	problems = append(problems, validateRetry(fmt.Sprintf("agent %q retry", a.Name), a.Retry)...)
	if a.Auth != nil {
		switch a.Auth.Type {
		case workflow.AuthNone, workflow.AuthBearer, workflow.AuthAPIKey, workflow.AuthBasic:
		default:
			problems = append(problems, fmt.Sprintf("agent %q: unknown auth type %q", a.Name, a.Auth.Type))
		}
	}
	return problems
}

func validateRetry(label string, rp workflow.RetryPolicy) []string {
	var problems []string
	if rp.MaxAttempts != 0 && rp.MaxAttempts < 1 {
		problems = append(problems, fmt.Sprintf("%s: max_attempts must be >= 1", label))
	}
	if rp.Base != 0 && rp.Base <= 1 {
		problems = append(problems, fmt.Sprintf("%s: base must be > 1", label))
	}
	return problems
}

// detectCycle runs the same DFS coloring the scheduler's dag package
// uses, duplicated here (rather than imported) so the config package can
// validate a workflow document without depending on the scheduler.
func detectCycle(tasks []workflow.TaskDescriptor) []string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.Name] = t.DependsOn
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var problems []string
	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		for _, dep := range deps[name] {
			switch color[dep] {
			case gray:
				problems = append(problems, fmt.Sprintf("cycle detected involving task %q", dep))
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[name] = black
		return false
	}
	for _, t := range tasks {
		if color[t.Name] == white {
			if visit(t.Name) {
				break
			}
		}
	}
	return problems
}
