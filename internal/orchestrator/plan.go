package orchestrator

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/payperwork/payperwork/internal/agent"
	"gopkg.in/yaml.v3"
)

// StepStatus is the lifecycle of one step. Transitions are
// pending -> running -> {completed, failed}, set only by the orchestrator.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one unit of work in a plan. Dependencies reference other steps by
// NAME for caller ergonomics; validation resolves them to ids once and all
// bookkeeping is keyed by the opaque id.
type Step struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	AgentName    string      `json:"agent" yaml:"agent"`
	Input        agent.Input `json:"input,omitempty" yaml:"input,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Plan is an immutable DAG of steps submitted for one execution.
type Plan struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// LoadPlanFile reads a YAML plan definition from disk.
func LoadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}
	return &plan, nil
}

// validation holds the lookup tables built once per plan.
type validation struct {
	byID     map[string]*Step
	nameToID map[string]string
}

// validatePlan checks the plan and fills in missing step ids. It fails fast:
// no agent executes for an invalid plan.
func (o *Orchestrator) validatePlan(plan *Plan) (*validation, error) {
	if plan == nil || len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}

	v := &validation{
		byID:     make(map[string]*Step, len(plan.Steps)),
		nameToID: make(map[string]string, len(plan.Steps)),
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		if _, dup := v.nameToID[step.Name]; dup {
			return nil, fmt.Errorf("duplicate step name: %s", step.Name)
		}
		if _, dup := v.byID[step.ID]; dup {
			return nil, fmt.Errorf("duplicate step id: %s", step.ID)
		}
		if !o.registry.Has(step.AgentName) {
			return nil, fmt.Errorf("step %s references unknown agent %q", step.Name, step.AgentName)
		}
		v.nameToID[step.Name] = step.ID
		v.byID[step.ID] = step
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		for _, dep := range step.Dependencies {
			if _, ok := v.nameToID[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %q", step.Name, dep)
			}
			if dep == step.Name {
				return nil, fmt.Errorf("step %s depends on itself", step.Name)
			}
		}
	}

	if err := detectCycles(plan, v); err != nil {
		return nil, err
	}

	return v, nil
}

// detectCycles runs a DFS with a recursion stack over the dependency graph.
func detectCycles(plan *Plan, v *validation) error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the recursion stack
		black = 2 // done
	)
	color := make(map[string]int, len(plan.Steps))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case grey:
			return fmt.Errorf("circular dependency involving step %q", name)
		case black:
			return nil
		}
		color[name] = grey
		step := v.byID[v.nameToID[name]]
		for _, dep := range step.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for i := range plan.Steps {
		if err := visit(plan.Steps[i].Name); err != nil {
			return err
		}
	}
	return nil
}
