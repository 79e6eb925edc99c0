// Package poller is the fallback delivery path for task completion. Webhooks
// are the primary path; when one is lost, the poller notices the task
// finished and feeds the same completion handler the webhook would have.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/payperwork/payperwork/internal/protocol"
	"github.com/payperwork/payperwork/internal/slides"
)

const (
	// DefaultInterval is how often a watched task is polled.
	DefaultInterval = 2 * time.Second
	// DefaultMaxDuration bounds how long a task is watched before being
	// declared dead.
	DefaultMaxDuration = 10 * time.Minute
)

// StatusAPI is the slice of the provider client the poller reads through.
type StatusAPI interface {
	GetTask(ctx context.Context, taskID string) (*protocol.TaskEvent, error)
}

// Handler receives polled events. The slides service satisfies it, so polled
// completion goes through the exact path a webhook delivery would.
type Handler interface {
	HandleTaskStopped(ctx context.Context, ev *protocol.TaskEvent) (*slides.Outcome, error)
	HandleProgress(ctx context.Context, ev *protocol.TaskEvent) error
}

// Poller watches running tasks, one goroutine per task.
type Poller struct {
	api         StatusAPI
	handler     Handler
	interval    time.Duration
	maxDuration time.Duration

	mu       sync.Mutex
	watching map[string]context.CancelFunc
}

// New creates a poller with the default cadence.
func New(api StatusAPI, handler Handler) *Poller {
	return &Poller{
		api:         api,
		handler:     handler,
		interval:    DefaultInterval,
		maxDuration: DefaultMaxDuration,
		watching:    make(map[string]context.CancelFunc),
	}
}

// SetCadence overrides the poll interval and watch bound. Zero values keep
// the defaults.
func (p *Poller) SetCadence(interval, maxDuration time.Duration) {
	if interval > 0 {
		p.interval = interval
	}
	if maxDuration > 0 {
		p.maxDuration = maxDuration
	}
}

// Watch starts polling a task. Idempotent: a second Watch for the same task
// is a no-op, so re-dispatch after a restart or a racing caller is safe.
func (p *Poller) Watch(ctx context.Context, taskID string) {
	p.mu.Lock()
	if _, ok := p.watching[taskID]; ok {
		p.mu.Unlock()
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	p.watching[taskID] = cancel
	p.mu.Unlock()

	go p.run(taskCtx, taskID)
}

// Stop stops watching a task, if it is being watched.
func (p *Poller) Stop(taskID string) {
	p.mu.Lock()
	cancel, ok := p.watching[taskID]
	delete(p.watching, taskID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// Watching reports whether a task is currently being polled.
func (p *Poller) Watching(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watching[taskID]
	return ok
}

// Close stops every watch.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for taskID, cancel := range p.watching {
		cancel()
		delete(p.watching, taskID)
	}
}

func (p *Poller) run(ctx context.Context, taskID string) {
	defer p.Stop(taskID)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			// The provider went silent past the watch bound; fail the task
			// through the shared path. If a late webhook raced us here, the
			// conditional update makes one of us the loser.
			log.Printf("[Poller] task %s: no terminal event after %s, failing", taskID, p.maxDuration)
			ev := &protocol.TaskEvent{
				TaskID:       taskID,
				EventType:    protocol.TaskEventStopped,
				StopReason:   protocol.StopReasonError,
				ErrorMessage: "generation timed out",
			}
			if _, err := p.handler.HandleTaskStopped(ctx, ev); err != nil {
				log.Printf("[Poller] task %s: fail after timeout: %v", taskID, err)
			}
			return
		case <-ticker.C:
			ev, err := p.api.GetTask(ctx, taskID)
			if err != nil {
				// Transient upstream trouble; keep polling until the bound.
				log.Printf("[Poller] task %s: poll: %v", taskID, err)
				continue
			}
			if ev.EventType == protocol.TaskEventStopped {
				out, err := p.handler.HandleTaskStopped(ctx, ev)
				if err != nil {
					log.Printf("[Poller] task %s: apply stop: %v", taskID, err)
				} else if out.Duplicate {
					log.Printf("[Poller] task %s: webhook got there first", taskID)
				}
				return
			}
			if err := p.handler.HandleProgress(ctx, ev); err != nil {
				log.Printf("[Poller] task %s: apply progress: %v", taskID, err)
			}
		}
	}
}
