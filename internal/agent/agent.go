package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Input is the payload handed to an agent for one workflow step. The
// orchestrator injects dependency outputs under the dependency's step name.
type Input map[string]interface{}

// Result is the uniform contract every agent and tool returns. Success=false
// implies Error is populated; Data is only meaningful on success.
type Result struct {
	Success  bool                   `json:"success"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Failure builds a failed Result from an error message.
func Failure(format string, args ...interface{}) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Agent executes one workflow step. Implementations return
// {Success:false, Error} for expected failure modes instead of returning an
// error; the error return is reserved for infrastructure faults.
type Agent interface {
	Name() string
	Execute(ctx context.Context, input Input) (*Result, error)
}

// Execution is one entry in an agent's invocation history.
type Execution struct {
	Agent     string        `json:"agent"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit caps per-instance execution history. Oldest entries are
// evicted first.
const historyLimit = 100

// BaseAgent carries identity and tracking shared by all agents. Concrete
// agents embed it and supply Execute; orchestrators call Run, never Execute
// directly.
type BaseAgent struct {
	name        string
	version     string
	description string

	mu      sync.Mutex
	history []Execution
}

// NewBaseAgent creates the embeddable base.
func NewBaseAgent(name, version, description string) BaseAgent {
	return BaseAgent{name: name, version: version, description: description}
}

func (b *BaseAgent) Name() string        { return b.name }
func (b *BaseAgent) Version() string     { return b.version }
func (b *BaseAgent) Description() string { return b.description }

// Run wraps an agent's Execute with timing, panic recovery, history and
// logging. It is pure composition and must not be overridden.
func (b *BaseAgent) Run(ctx context.Context, a Agent, input Input) *Result {
	start := time.Now()

	result := func() (res *Result) {
		defer func() {
			if r := recover(); r != nil {
				res = Failure("agent %s panicked: %v", b.name, r)
			}
		}()
		res, err := a.Execute(ctx, input)
		if err != nil {
			return Failure("agent %s: %v", b.name, err)
		}
		if res == nil {
			return Failure("agent %s returned no result", b.name)
		}
		return res
	}()

	elapsed := time.Since(start)
	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}
	result.Metadata["agent"] = b.name
	result.Metadata["version"] = b.version
	result.Metadata["execution_time_ms"] = elapsed.Milliseconds()

	b.record(Execution{
		Agent:     b.name,
		StartedAt: start,
		Duration:  elapsed,
		Success:   result.Success,
		Error:     result.Error,
	})

	if result.Success {
		log.Printf("[Agent:%s] completed in %s", b.name, elapsed.Round(time.Millisecond))
	} else {
		log.Printf("[Agent:%s] failed in %s: %s", b.name, elapsed.Round(time.Millisecond), result.Error)
	}

	return result
}

func (b *BaseAgent) record(e Execution) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, e)
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
}

// History returns a copy of the invocation history.
func (b *BaseAgent) History() []Execution {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Execution, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory drops recorded invocations.
func (b *BaseAgent) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}
