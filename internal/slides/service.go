// Package slides owns the presentation generation lifecycle: dispatching a
// task to the external provider, applying its webhook/poll events, and
// fanning status out to the owner's socket room. The webhook handler and the
// status poller both funnel into this package so there is exactly one
// completion path.
package slides

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/payperwork/payperwork/internal/manus"
	"github.com/payperwork/payperwork/internal/protocol"
	"github.com/payperwork/payperwork/internal/store"
)

// TaskAPI is the slice of the provider client the service dispatches through.
type TaskAPI interface {
	CreateTask(ctx context.Context, prompt, webhookURL string) (string, error)
}

// Emitter is the socket surface the service pushes events through. The relay
// hub satisfies it; tests substitute a recorder.
type Emitter interface {
	EmitGenerationStatus(userID string, p protocol.GenerationStatus)
	EmitGenerationProgress(userID string, p protocol.GenerationProgress)
	EmitGenerationCompleted(userID string, p protocol.GenerationCompleted)
	EmitGenerationError(userID string, p protocol.GenerationError)
	EmitThinkingStep(userID string, p protocol.ThinkingStep)
	EmitThinkingAction(userID string, p protocol.ThinkingAction)
	EmitSlidePreview(userID string, p protocol.SlidePreview)
	EmitTopicsGenerated(userID string, p protocol.TopicsGenerated)
	EmitPresentationReady(userID string, p protocol.PresentationReady)
	EmitPresentationError(userID string, p protocol.PresentationError)
}

// Notifier delivers out-of-band notifications (chat message, etc). May be nil.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Publisher publishes lifecycle events to the message bus. May be nil.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus subjects for presentation lifecycle events.
const (
	SubjectPresentationReady  = "payperwork.presentation.ready"
	SubjectPresentationFailed = "payperwork.presentation.error"
)

// Service coordinates the store, the provider and the realtime surfaces.
type Service struct {
	store      *store.Store
	tasks      TaskAPI
	emitter    Emitter
	notifier   Notifier
	bus        Publisher
	webhookURL string
}

// NewService wires the generation service. notifier and bus may be nil.
func NewService(st *store.Store, tasks TaskAPI, emitter Emitter, notifier Notifier, bus Publisher, webhookURL string) *Service {
	return &Service{
		store:      st,
		tasks:      tasks,
		emitter:    emitter,
		notifier:   notifier,
		bus:        bus,
		webhookURL: webhookURL,
	}
}

// StartGeneration creates a presentation and dispatches the provider task.
// On dispatch failure the presentation is flipped to error before returning
// so it never sticks in generating with no task behind it.
func (s *Service) StartGeneration(ctx context.Context, userID, prompt string) (*store.Presentation, error) {
	p := &store.Presentation{
		UserID: userID,
		Prompt: prompt,
		Status: store.StatusGenerating,
	}
	if err := s.store.CreatePresentation(ctx, p); err != nil {
		return nil, fmt.Errorf("create presentation: %w", err)
	}

	taskID, err := s.tasks.CreateTask(ctx, prompt, s.webhookURL)
	if err != nil {
		if uerr := s.store.UpdatePresentationStatus(ctx, p.ID, store.StatusError, "task dispatch failed"); uerr != nil {
			log.Printf("[Slides] presentation %s: mark dispatch failure: %v", p.ID, uerr)
		}
		return nil, fmt.Errorf("dispatch generation task: %w", err)
	}

	if err := s.store.SetPresentationTask(ctx, p.ID, taskID); err != nil {
		return nil, fmt.Errorf("record task id: %w", err)
	}
	if err := s.store.CreateTask(ctx, &store.ManusTask{
		TaskID:         taskID,
		PresentationID: p.ID,
		UserID:         userID,
	}); err != nil {
		return nil, fmt.Errorf("record task row: %w", err)
	}
	p.TaskID = taskID

	s.emitter.EmitGenerationStatus(userID, protocol.GenerationStatus{
		PresentationID: p.ID,
		Status:         store.StatusGenerating,
		Message:        "Generating slides...",
	})
	log.Printf("[Slides] presentation %s dispatched as task %s", p.ID, taskID)
	return p, nil
}

// Outcome reports what a task_stopped event did.
type Outcome struct {
	// Duplicate is true when another delivery already finished the task;
	// the caller acknowledges and does nothing else.
	Duplicate      bool
	PresentationID string
	SlidesCount    int
}

// HandleTaskStopped applies a terminal provider event. The conditional task
// update decides the webhook/poller race; the loser returns Duplicate with no
// side effects. A finish whose result cannot be parsed fails the presentation
// and returns an error (the task row itself stays completed: the provider did
// finish, the payload was unusable).
func (s *Service) HandleTaskStopped(ctx context.Context, ev *protocol.TaskEvent) (*Outcome, error) {
	task, err := s.store.GetTask(ctx, ev.TaskID)
	if err != nil {
		return nil, fmt.Errorf("lookup task %s: %w", ev.TaskID, err)
	}
	p, err := s.store.GetPresentation(ctx, task.PresentationID)
	if err != nil {
		return nil, fmt.Errorf("lookup presentation %s: %w", task.PresentationID, err)
	}

	if ev.StopReason == protocol.StopReasonFinish {
		return s.finish(ctx, p, ev)
	}
	return s.fail(ctx, p, ev)
}

func (s *Service) finish(ctx context.Context, p *store.Presentation, ev *protocol.TaskEvent) (*Outcome, error) {
	won, err := s.store.CompleteTask(ctx, ev.TaskID, protocol.Encode(ev))
	if err != nil {
		return nil, fmt.Errorf("complete task %s: %w", ev.TaskID, err)
	}
	if !won {
		log.Printf("[Slides] task %s already finished, skipping duplicate delivery", ev.TaskID)
		return &Outcome{Duplicate: true, PresentationID: p.ID}, nil
	}

	slideSet, err := manus.ParseSlides(ev.Result)
	if err != nil {
		reason := fmt.Sprintf("task finished with unusable result: %v", err)
		s.failPresentation(ctx, p, reason)
		return nil, fmt.Errorf("parse task %s result: %w", ev.TaskID, err)
	}

	if topics := manus.ParseTopics(ev.Result); len(topics) > 0 {
		if err := s.store.SetPresentationTopics(ctx, p.ID, topics); err != nil {
			log.Printf("[Slides] presentation %s: save topics: %v", p.ID, err)
		} else {
			s.emitter.EmitTopicsGenerated(p.UserID, protocol.TopicsGenerated{
				PresentationID: p.ID,
				Topics:         topics,
			})
		}
	}

	if err := s.store.FinishPresentation(ctx, p.ID, slideSet); err != nil {
		reason := fmt.Sprintf("persist slides: %v", err)
		s.failPresentation(ctx, p, reason)
		return nil, fmt.Errorf("finish presentation %s: %w", p.ID, err)
	}

	count := len(slideSet)
	s.emitter.EmitGenerationCompleted(p.UserID, protocol.GenerationCompleted{
		PresentationID: p.ID,
		SlidesCount:    count,
	})
	s.emitter.EmitPresentationReady(p.UserID, protocol.PresentationReady{
		PresentationID: p.ID,
		SlidesCount:    count,
	})
	s.notify(ctx, fmt.Sprintf("Presentation %s is ready (%d slides)", p.ID, count))
	s.publish(SubjectPresentationReady, map[string]interface{}{
		"presentation_id": p.ID,
		"user_id":         p.UserID,
		"slides_count":    count,
	})

	log.Printf("[Slides] presentation %s ready with %d slides", p.ID, count)
	return &Outcome{PresentationID: p.ID, SlidesCount: count}, nil
}

func (s *Service) fail(ctx context.Context, p *store.Presentation, ev *protocol.TaskEvent) (*Outcome, error) {
	won, err := s.store.FailTask(ctx, ev.TaskID, protocol.Encode(ev))
	if err != nil {
		return nil, fmt.Errorf("fail task %s: %w", ev.TaskID, err)
	}
	if !won {
		log.Printf("[Slides] task %s already finished, skipping duplicate delivery", ev.TaskID)
		return &Outcome{Duplicate: true, PresentationID: p.ID}, nil
	}

	reason := ev.ErrorMessage
	if reason == "" {
		switch ev.StopReason {
		case protocol.StopReasonUserStopped:
			reason = "generation stopped by user"
		default:
			reason = "generation failed"
		}
	}
	s.failPresentation(ctx, p, reason)
	s.notify(ctx, fmt.Sprintf("Presentation %s failed: %s", p.ID, reason))
	s.publish(SubjectPresentationFailed, map[string]interface{}{
		"presentation_id": p.ID,
		"user_id":         p.UserID,
		"reason":          reason,
	})

	log.Printf("[Slides] presentation %s failed: %s", p.ID, reason)
	return &Outcome{PresentationID: p.ID}, nil
}

// failPresentation flips the row to error and emits both failure events.
func (s *Service) failPresentation(ctx context.Context, p *store.Presentation, reason string) {
	if err := s.store.UpdatePresentationStatus(ctx, p.ID, store.StatusError, reason); err != nil {
		log.Printf("[Slides] presentation %s: mark error: %v", p.ID, err)
	}
	s.emitter.EmitGenerationError(p.UserID, protocol.GenerationError{
		PresentationID: p.ID,
		Reason:         reason,
	})
	s.emitter.EmitPresentationError(p.UserID, protocol.PresentationError{
		PresentationID: p.ID,
		Reason:         reason,
	})
}

// HandleProgress applies a non-terminal provider event: persists the payload
// for the status endpoint and mirrors it to the owner's room. Progress after
// the task reached a terminal state is dropped by the store and not emitted.
func (s *Service) HandleProgress(ctx context.Context, ev *protocol.TaskEvent) error {
	task, err := s.store.GetTask(ctx, ev.TaskID)
	if err != nil {
		return fmt.Errorf("lookup task %s: %w", ev.TaskID, err)
	}
	if task.Status != store.TaskRunning {
		return nil
	}
	p, err := s.store.GetPresentation(ctx, task.PresentationID)
	if err != nil {
		return fmt.Errorf("lookup presentation %s: %w", task.PresentationID, err)
	}

	if err := s.store.SaveTaskProgress(ctx, ev.TaskID, protocol.Encode(ev)); err != nil {
		log.Printf("[Slides] task %s: save progress: %v", ev.TaskID, err)
	}

	for _, step := range ev.ThinkingSteps {
		step.PresentationID = p.ID
		s.emitter.EmitThinkingStep(p.UserID, step)
	}
	if ev.ThinkingAction != nil {
		action := *ev.ThinkingAction
		action.PresentationID = p.ID
		s.emitter.EmitThinkingAction(p.UserID, action)
	}
	if ev.SlidePreview != nil {
		preview := *ev.SlidePreview
		preview.PresentationID = p.ID
		s.emitter.EmitSlidePreview(p.UserID, preview)
	}
	if ev.Progress != nil {
		s.emitter.EmitGenerationProgress(p.UserID, protocol.GenerationProgress{
			PresentationID: p.ID,
			Progress:       *ev.Progress,
			CurrentStep:    ev.CurrentStep,
		})
	}
	return nil
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		log.Printf("[Slides] notify: %v", err)
	}
}

func (s *Service) publish(subject string, payload interface{}) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(subject, data); err != nil {
		log.Printf("[Slides] publish %s: %v", subject, err)
	}
}
