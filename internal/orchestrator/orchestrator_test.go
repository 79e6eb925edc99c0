package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/payperwork/payperwork/internal/agent"
)

// recordingAgent completes successfully and records invocation order.
type recordingAgent struct {
	name  string
	calls *callLog
	fail  bool
	delay time.Duration
	seen  agent.Input
}

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (l *callLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func (a *recordingAgent) Name() string { return a.name }

func (a *recordingAgent) Execute(ctx context.Context, input agent.Input) (*agent.Result, error) {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.calls.add(a.name)
	a.seen = input
	if a.fail {
		return agent.Failure("%s exploded", a.name), nil
	}
	return &agent.Result{
		Success: true,
		Data:    map[string]interface{}{"output": a.name},
	}, nil
}

func newFixture(t *testing.T, agents ...agent.Agent) *Orchestrator {
	t.Helper()
	reg := agent.NewRegistry()
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register %s: %v", a.Name(), err)
		}
	}
	return New(reg, Config{MaxParallelSteps: 3})
}

func TestExecuteWorkflow_DependencyOrder(t *testing.T) {
	calls := &callLog{}
	fetch := &recordingAgent{name: "fetch", calls: calls}
	plan2 := &recordingAgent{name: "plan", calls: calls}
	render := &recordingAgent{name: "render", calls: calls}
	orch := newFixture(t, fetch, plan2, render)

	plan := &Plan{
		Name: "deck",
		Steps: []Step{
			{Name: "render-step", AgentName: "render", Dependencies: []string{"plan-step"}},
			{Name: "plan-step", AgentName: "plan", Dependencies: []string{"fetch-step"}},
			{Name: "fetch-step", AgentName: "fetch"},
		},
	}

	res, err := orch.ExecuteWorkflow(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, errors: %v", res.Errors)
	}
	if len(res.StepResults) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.StepResults))
	}
	for id, status := range res.StepStatuses {
		if status != StepCompleted {
			t.Errorf("step %s status = %s, want completed", id, status)
		}
	}

	order := calls.names()
	if order[0] != "fetch" || order[1] != "plan" || order[2] != "render" {
		t.Errorf("dependency order violated: %v", order)
	}
}

func TestExecuteWorkflow_InjectsDependencyData(t *testing.T) {
	calls := &callLog{}
	producer := &recordingAgent{name: "producer", calls: calls}
	consumer := &recordingAgent{name: "consumer", calls: calls}
	orch := newFixture(t, producer, consumer)

	plan := &Plan{
		Name: "inject",
		Steps: []Step{
			{Name: "make", AgentName: "producer"},
			{Name: "use", AgentName: "consumer", Dependencies: []string{"make"}},
		},
	}

	if _, err := orch.ExecuteWorkflow(context.Background(), plan); err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}

	injected, ok := consumer.seen["make"].(map[string]interface{})
	if !ok {
		t.Fatalf("consumer input missing dependency data: %v", consumer.seen)
	}
	if injected["output"] != "producer" {
		t.Errorf("injected data = %v", injected)
	}
}

func TestExecuteWorkflow_CycleFailsBeforeExecution(t *testing.T) {
	calls := &callLog{}
	a := &recordingAgent{name: "a", calls: calls}
	orch := newFixture(t, a)

	plan := &Plan{
		Name: "cycle",
		Steps: []Step{
			{Name: "one", AgentName: "a", Dependencies: []string{"two"}},
			{Name: "two", AgentName: "a", Dependencies: []string{"one"}},
		},
	}

	_, err := orch.ExecuteWorkflow(context.Background(), plan)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("error = %v", err)
	}
	if len(calls.names()) != 0 {
		t.Errorf("agents executed despite invalid plan: %v", calls.names())
	}
}

func TestExecuteWorkflow_UnknownAgentNamed(t *testing.T) {
	calls := &callLog{}
	known := &recordingAgent{name: "known", calls: calls}
	orch := newFixture(t, known)

	plan := &Plan{
		Name: "missing",
		Steps: []Step{
			{Name: "ok", AgentName: "known"},
			{Name: "bad", AgentName: "ghost"},
		},
	}

	_, err := orch.ExecuteWorkflow(context.Background(), plan)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error should name the missing agent: %v", err)
	}
	if len(calls.names()) != 0 {
		t.Errorf("no step should execute: %v", calls.names())
	}
}

func TestExecuteWorkflow_DuplicateNamesRejected(t *testing.T) {
	calls := &callLog{}
	a := &recordingAgent{name: "a", calls: calls}
	orch := newFixture(t, a)

	plan := &Plan{
		Name: "dups",
		Steps: []Step{
			{Name: "same", AgentName: "a"},
			{Name: "same", AgentName: "a"},
		},
	}

	if _, err := orch.ExecuteWorkflow(context.Background(), plan); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestExecuteWorkflow_FailedDependencySkipsDependents(t *testing.T) {
	calls := &callLog{}
	boom := &recordingAgent{name: "boom", calls: calls, fail: true}
	after := &recordingAgent{name: "after", calls: calls}
	side := &recordingAgent{name: "side", calls: calls}
	orch := newFixture(t, boom, after, side)

	plan := &Plan{
		Name: "partial",
		Steps: []Step{
			{Name: "explode", AgentName: "boom"},
			{Name: "downstream", AgentName: "after", Dependencies: []string{"explode"}},
			{Name: "independent", AgentName: "side"},
		},
	}

	res, err := orch.ExecuteWorkflow(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected overall failure")
	}
	if len(res.StepResults) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.StepResults))
	}

	order := calls.names()
	for _, name := range order {
		if name == "after" {
			t.Error("dependent of failed step must not execute")
		}
	}

	ranSide := false
	for _, name := range order {
		if name == "side" {
			ranSide = true
		}
	}
	if !ranSide {
		t.Error("independent branch should still run")
	}
}

func TestExecuteWorkflow_BatchesWidePlans(t *testing.T) {
	calls := &callLog{}
	var agents []agent.Agent
	for _, n := range []string{"p1", "p2", "p3", "p4", "p5"} {
		agents = append(agents, &recordingAgent{name: n, calls: calls, delay: 10 * time.Millisecond})
	}
	reg := agent.NewRegistry()
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatal(err)
		}
	}
	orch := New(reg, Config{MaxParallelSteps: 2})

	plan := &Plan{Name: "wide"}
	for _, n := range []string{"p1", "p2", "p3", "p4", "p5"} {
		plan.Steps = append(plan.Steps, Step{Name: n + "-step", AgentName: n})
	}

	res, err := orch.ExecuteWorkflow(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}
	if !res.Success || len(res.StepResults) != 5 {
		t.Fatalf("expected 5 completed steps, got %d (success=%v)", len(res.StepResults), res.Success)
	}
}

func TestExecuteWorkflow_HistoryCapped(t *testing.T) {
	calls := &callLog{}
	a := &recordingAgent{name: "a", calls: calls}
	reg := agent.NewRegistry()
	if err := reg.Register(a); err != nil {
		t.Fatal(err)
	}
	orch := New(reg, Config{HistoryLimit: 3})

	for i := 0; i < 5; i++ {
		plan := &Plan{Name: "tiny", Steps: []Step{{Name: "only", AgentName: "a"}}}
		if _, err := orch.ExecuteWorkflow(context.Background(), plan); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(orch.History()); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}

	orch.ClearHistory()
	if got := len(orch.History()); got != 0 {
		t.Errorf("history not cleared: %d", got)
	}
}

func TestExecuteWorkflow_EmptyPlanRejected(t *testing.T) {
	orch := newFixture(t)
	if _, err := orch.ExecuteWorkflow(context.Background(), &Plan{Name: "empty"}); err == nil {
		t.Fatal("expected error for empty plan")
	}
}
