package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperwork/payperwork/internal/protocol"
	"github.com/payperwork/payperwork/internal/slides"
)

// scriptedAPI returns the queued events in order, repeating the last one.
type scriptedAPI struct {
	mu     sync.Mutex
	events []*protocol.TaskEvent
	calls  int
}

func (s *scriptedAPI) GetTask(ctx context.Context, taskID string) (*protocol.TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	idx := s.calls - 1
	if idx >= len(s.events) {
		idx = len(s.events) - 1
	}
	ev := *s.events[idx]
	ev.TaskID = taskID
	return &ev, nil
}

type recordingHandler struct {
	mu       sync.Mutex
	stopped  []*protocol.TaskEvent
	progress []*protocol.TaskEvent
	done     chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{})}
}

func (h *recordingHandler) HandleTaskStopped(ctx context.Context, ev *protocol.TaskEvent) (*slides.Outcome, error) {
	h.mu.Lock()
	h.stopped = append(h.stopped, ev)
	h.mu.Unlock()
	close(h.done)
	return &slides.Outcome{PresentationID: "p-1"}, nil
}

func (h *recordingHandler) HandleProgress(ctx context.Context, ev *protocol.TaskEvent) error {
	h.mu.Lock()
	h.progress = append(h.progress, ev)
	h.mu.Unlock()
	return nil
}

func waitDone(t *testing.T, h *recordingHandler) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw a terminal event")
	}
}

func TestPollUntilStopped(t *testing.T) {
	progress := 40
	api := &scriptedAPI{events: []*protocol.TaskEvent{
		{EventType: protocol.TaskEventProgress, Progress: &progress},
		{EventType: protocol.TaskEventStopped, StopReason: protocol.StopReasonFinish},
	}}
	handler := newRecordingHandler()

	p := New(api, handler)
	p.SetCadence(5*time.Millisecond, time.Second)
	p.Watch(context.Background(), "task-1")
	waitDone(t, handler)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.stopped, 1)
	assert.Equal(t, protocol.StopReasonFinish, handler.stopped[0].StopReason)
	assert.Len(t, handler.progress, 1)
}

func TestWatchIsIdempotent(t *testing.T) {
	api := &scriptedAPI{events: []*protocol.TaskEvent{
		{EventType: protocol.TaskEventStopped, StopReason: protocol.StopReasonFinish},
	}}
	handler := newRecordingHandler()

	p := New(api, handler)
	p.SetCadence(5*time.Millisecond, time.Second)
	p.Watch(context.Background(), "task-1")
	p.Watch(context.Background(), "task-1")
	waitDone(t, handler)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Len(t, handler.stopped, 1, "double Watch must not double-deliver")
}

func TestWatchStopsAfterDelivery(t *testing.T) {
	api := &scriptedAPI{events: []*protocol.TaskEvent{
		{EventType: protocol.TaskEventStopped, StopReason: protocol.StopReasonFinish},
	}}
	handler := newRecordingHandler()

	p := New(api, handler)
	p.SetCadence(5*time.Millisecond, time.Second)
	p.Watch(context.Background(), "task-1")
	waitDone(t, handler)

	deadline := time.Now().Add(time.Second)
	for p.Watching("task-1") {
		if time.Now().After(deadline) {
			t.Fatal("watch never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTimeoutFailsTask(t *testing.T) {
	// Provider keeps reporting progress and never stops.
	api := &scriptedAPI{events: []*protocol.TaskEvent{
		{EventType: protocol.TaskEventProgress},
	}}
	handler := newRecordingHandler()

	p := New(api, handler)
	p.SetCadence(5*time.Millisecond, 40*time.Millisecond)
	p.Watch(context.Background(), "task-1")
	waitDone(t, handler)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.stopped, 1)
	assert.Equal(t, protocol.StopReasonError, handler.stopped[0].StopReason)
	assert.Equal(t, "generation timed out", handler.stopped[0].ErrorMessage)
}

func TestCloseCancelsWatches(t *testing.T) {
	api := &scriptedAPI{events: []*protocol.TaskEvent{
		{EventType: protocol.TaskEventProgress},
	}}
	handler := newRecordingHandler()

	p := New(api, handler)
	p.SetCadence(5*time.Millisecond, time.Minute)
	p.Watch(context.Background(), "task-1")
	p.Close()

	assert.False(t, p.Watching("task-1"))
}
