package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/payperwork/payperwork/internal/agent"
)

// Config tunes one orchestrator instance.
type Config struct {
	MaxParallelSteps int // concurrent steps per batch (default 3)
	HistoryLimit     int // retained workflow results (default 100)
}

// Result is the terminal record of one plan execution. All maps are keyed by
// step id.
type Result struct {
	PlanID        string                   `json:"plan_id"`
	PlanName      string                   `json:"plan_name"`
	StepResults   map[string]*agent.Result `json:"step_results"`
	StepStatuses  map[string]StepStatus    `json:"step_statuses"`
	Success       bool                     `json:"success"`
	ExecutionTime time.Duration            `json:"execution_time"`
	Errors        []string                 `json:"errors,omitempty"`
}

func (r *Result) resultByID(id string) (*agent.Result, bool) {
	res, ok := r.StepResults[id]
	return res, ok
}

// Orchestrator registers agents and executes workflow plans. Instances are
// safe for concurrent ExecuteWorkflow calls; each run keeps its own step
// bookkeeping and only the history is shared.
type Orchestrator struct {
	registry *agent.Registry
	cfg      Config

	mu      sync.Mutex
	history []*Result
}

// New creates an orchestrator over a registry.
func New(registry *agent.Registry, cfg Config) *Orchestrator {
	if cfg.MaxParallelSteps <= 0 {
		cfg.MaxParallelSteps = 3
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &Orchestrator{registry: registry, cfg: cfg}
}

// ExecuteWorkflow validates and runs a plan. Guarantees:
//   - invalid plans (cycles, unknown agents/deps, duplicate names) fail
//     before any agent executes;
//   - a step runs only after every dependency has a recorded result;
//   - a step whose dependency failed is marked failed without executing,
//     so independent branches still run and the run always terminates;
//   - the returned Result holds exactly one entry per step.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, plan *Plan) (*Result, error) {
	v, err := o.validatePlan(plan)
	if err != nil {
		return nil, fmt.Errorf("invalid plan %q: %w", plan.Name, err)
	}

	start := time.Now()
	log.Printf("[Orchestrator] plan %q: %d steps, max parallel %d", plan.Name, len(plan.Steps), o.cfg.MaxParallelSteps)

	run := &Result{
		PlanID:       plan.ID,
		PlanName:     plan.Name,
		StepResults:  make(map[string]*agent.Result, len(plan.Steps)),
		StepStatuses: make(map[string]StepStatus, len(plan.Steps)),
		Success:      true,
	}
	for i := range plan.Steps {
		run.StepStatuses[plan.Steps[i].ID] = StepPending
	}

	var runMu sync.Mutex

	for len(run.StepResults) < len(plan.Steps) {
		if err := ctx.Err(); err != nil {
			o.failRemaining(plan, run, "workflow cancelled: "+err.Error())
			break
		}

		ready, blocked := o.partition(plan, v, run)

		// Steps blocked by a failed dependency terminate without executing.
		for _, step := range blocked {
			run.StepStatuses[step.ID] = StepFailed
			run.StepResults[step.ID] = agent.Failure("dependency of step %q failed", step.Name)
			run.Success = false
			run.Errors = append(run.Errors, fmt.Sprintf("step %s skipped: failed dependency", step.Name))
		}
		if len(blocked) > 0 {
			continue
		}

		if len(ready) == 0 {
			// Validated acyclic plans always make progress; this is a guard
			// against bookkeeping bugs, not an expected state.
			o.failRemaining(plan, run, "no runnable steps remain")
			break
		}

		if len(ready) > o.cfg.MaxParallelSteps {
			ready = ready[:o.cfg.MaxParallelSteps]
		}

		var wg sync.WaitGroup
		for _, step := range ready {
			run.StepStatuses[step.ID] = StepRunning
			wg.Add(1)
			go func(step *Step) {
				defer wg.Done()

				input := o.buildInput(step, v, run, &runMu)
				res := o.runStep(ctx, step, input)

				runMu.Lock()
				run.StepResults[step.ID] = res
				if res.Success {
					run.StepStatuses[step.ID] = StepCompleted
				} else {
					run.StepStatuses[step.ID] = StepFailed
					run.Success = false
					run.Errors = append(run.Errors, fmt.Sprintf("step %s: %s", step.Name, res.Error))
				}
				runMu.Unlock()
			}(step)
		}
		wg.Wait()
	}

	run.ExecutionTime = time.Since(start)
	o.appendHistory(run)

	log.Printf("[Orchestrator] plan %q finished in %s (success=%v, %d errors)",
		plan.Name, run.ExecutionTime.Round(time.Millisecond), run.Success, len(run.Errors))

	return run, nil
}

// partition splits unfinished steps into ready (all deps completed) and
// blocked (some dep failed). Steps with pending deps stay in neither set.
func (o *Orchestrator) partition(plan *Plan, v *validation, run *Result) (ready, blocked []*Step) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if _, done := run.StepResults[step.ID]; done {
			continue
		}
		if run.StepStatuses[step.ID] == StepRunning {
			continue
		}

		satisfied := true
		failed := false
		for _, depName := range step.Dependencies {
			depID := v.nameToID[depName]
			res, ok := run.StepResults[depID]
			if !ok {
				satisfied = false
				break
			}
			if !res.Success {
				failed = true
			}
		}

		switch {
		case !satisfied:
		case failed:
			blocked = append(blocked, step)
		default:
			ready = append(ready, step)
		}
	}
	return ready, blocked
}

// buildInput copies the step's declared input and injects each dependency's
// Data under the dependency's step name.
func (o *Orchestrator) buildInput(step *Step, v *validation, run *Result, runMu *sync.Mutex) agent.Input {
	input := make(agent.Input, len(step.Input)+len(step.Dependencies))
	for k, val := range step.Input {
		input[k] = val
	}

	runMu.Lock()
	defer runMu.Unlock()
	for _, depName := range step.Dependencies {
		if res, ok := run.resultByID(v.nameToID[depName]); ok && res.Data != nil {
			input[depName] = res.Data
		}
	}
	return input
}

// trackedRunner is satisfied by agents embedding BaseAgent; their Run applies
// timing, panic recovery and history.
type trackedRunner interface {
	Run(ctx context.Context, a agent.Agent, input agent.Input) *agent.Result
}

func (o *Orchestrator) runStep(ctx context.Context, step *Step, input agent.Input) *agent.Result {
	a, err := o.registry.Get(step.AgentName)
	if err != nil {
		return agent.Failure("step %s: %v", step.Name, err)
	}

	if tr, ok := a.(trackedRunner); ok {
		return tr.Run(ctx, a, input)
	}

	res, err := a.Execute(ctx, input)
	if err != nil {
		return agent.Failure("step %s: %v", step.Name, err)
	}
	if res == nil {
		return agent.Failure("step %s: agent returned no result", step.Name)
	}
	return res
}

func (o *Orchestrator) failRemaining(plan *Plan, run *Result, reason string) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if _, done := run.StepResults[step.ID]; done {
			continue
		}
		run.StepStatuses[step.ID] = StepFailed
		run.StepResults[step.ID] = agent.Failure("%s", reason)
	}
	run.Success = false
	run.Errors = append(run.Errors, reason)
}

func (o *Orchestrator) appendHistory(run *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, run)
	if len(o.history) > o.cfg.HistoryLimit {
		o.history = o.history[len(o.history)-o.cfg.HistoryLimit:]
	}
}

// History returns a copy of retained workflow results, oldest first.
func (o *Orchestrator) History() []*Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Result, len(o.history))
	copy(out, o.history)
	return out
}

// ClearHistory drops retained results.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}
