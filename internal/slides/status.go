package slides

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/payperwork/payperwork/internal/protocol"
	"github.com/payperwork/payperwork/internal/store"
)

// WorkflowStatus is the coarse progress view served to pollers that have no
// socket: a status, a 0-100 estimate and a human-readable step description.
type WorkflowStatus struct {
	PresentationID string    `json:"presentation_id"`
	TaskID         string    `json:"task_id,omitempty"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	CurrentStep    string    `json:"current_step"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Per-status defaults used when the provider has not reported finer progress.
var statusDefaults = map[string]struct {
	progress int
	step     string
}{
	store.StatusGenerating:      {30, "Generating slides..."},
	store.StatusPlanning:        {50, "Planning presentation..."},
	store.StatusTopicsGenerated: {70, "Topics generated"},
	store.StatusReady:           {100, "Completed"},
	store.StatusError:           {0, "Error occurred"},
}

// WorkflowStatus reports a presentation's progress. While the task is still
// running, the latest saved provider payload refines the coarse defaults.
func (s *Service) WorkflowStatus(ctx context.Context, presentationID string) (*WorkflowStatus, error) {
	p, err := s.store.GetPresentation(ctx, presentationID)
	if err != nil {
		return nil, fmt.Errorf("lookup presentation %s: %w", presentationID, err)
	}

	ws := &WorkflowStatus{
		PresentationID: p.ID,
		TaskID:         p.TaskID,
		Status:         p.Status,
		Error:          p.Error,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if d, ok := statusDefaults[p.Status]; ok {
		ws.Progress = d.progress
		ws.CurrentStep = d.step
	}

	if p.TaskID == "" || p.Status == store.StatusReady || p.Status == store.StatusError {
		return ws, nil
	}
	task, err := s.store.GetTask(ctx, p.TaskID)
	if err != nil || task.Status != store.TaskRunning {
		return ws, nil
	}
	var last protocol.TaskEvent
	if err := json.Unmarshal(task.WebhookData, &last); err != nil {
		return ws, nil
	}
	if last.Progress != nil {
		ws.Progress = *last.Progress
	}
	if last.CurrentStep != "" {
		ws.CurrentStep = last.CurrentStep
	}
	return ws, nil
}
