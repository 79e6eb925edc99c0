package agent

import (
	"context"
	"log"
	"sync"
	"time"
)

// Tool is a named, single-purpose unit of async work agents compose.
// Expected failures come back as {Success:false}; the error return is for
// infrastructure faults only.
type Tool interface {
	Name() string
	Execute(ctx context.Context, input Input) (*Result, error)
}

// Invoke runs a tool through its BaseTool tracking when it embeds one,
// falling back to a bare Execute otherwise. Callers holding the Tool
// interface go through here instead of calling Execute directly.
func Invoke(ctx context.Context, t Tool, input Input) *Result {
	type tracked interface {
		Invoke(ctx context.Context, t Tool, input Input) *Result
	}
	if tt, ok := t.(tracked); ok {
		return tt.Invoke(ctx, t, input)
	}

	res, err := t.Execute(ctx, input)
	if err != nil {
		return Failure("tool %s: %v", t.Name(), err)
	}
	if res == nil {
		return Failure("tool %s returned no result", t.Name())
	}
	return res
}

// BaseTool wraps a Tool with timing, history and logging. Invoke is the only
// entry point callers use.
type BaseTool struct {
	name    string
	version string

	mu      sync.Mutex
	history []Execution
}

// NewBaseTool creates the embeddable base.
func NewBaseTool(name, version string) BaseTool {
	return BaseTool{name: name, version: version}
}

func (b *BaseTool) Name() string    { return b.name }
func (b *BaseTool) Version() string { return b.version }

// Invoke runs the tool with tracking. Panics and errors are converted into
// failed Results so a misbehaving tool never takes down the run.
func (b *BaseTool) Invoke(ctx context.Context, t Tool, input Input) *Result {
	start := time.Now()

	result := func() (res *Result) {
		defer func() {
			if r := recover(); r != nil {
				res = Failure("tool %s panicked: %v", b.name, r)
			}
		}()
		res, err := t.Execute(ctx, input)
		if err != nil {
			return Failure("tool %s: %v", b.name, err)
		}
		if res == nil {
			return Failure("tool %s returned no result", b.name)
		}
		return res
	}()

	elapsed := time.Since(start)
	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}
	result.Metadata["tool"] = b.name
	result.Metadata["version"] = b.version
	result.Metadata["execution_time_ms"] = elapsed.Milliseconds()

	b.mu.Lock()
	b.history = append(b.history, Execution{
		Agent:     b.name,
		StartedAt: start,
		Duration:  elapsed,
		Success:   result.Success,
		Error:     result.Error,
	})
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
	b.mu.Unlock()

	if !result.Success {
		log.Printf("[Tool:%s] failed in %s: %s", b.name, elapsed.Round(time.Millisecond), result.Error)
	}

	return result
}

// History returns a copy of the invocation history.
func (b *BaseTool) History() []Execution {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Execution, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory drops recorded invocations.
func (b *BaseTool) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}
