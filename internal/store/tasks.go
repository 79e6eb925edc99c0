package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Manus task statuses. A task is updated terminally exactly once: the webhook
// and the poller race for it, and the conditional updates below decide the
// winner.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// ManusTask tracks one external generation job.
type ManusTask struct {
	TaskID         string          `json:"task_id"`
	PresentationID string          `json:"presentation_id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	WebhookData    json.RawMessage `json:"webhook_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateTask inserts a task in the running state.
func (s *Store) CreateTask(ctx context.Context, t *ManusTask) error {
	if t.Status == "" {
		t.Status = TaskRunning
	}
	data := t.WebhookData
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	now := nowUnix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manus_tasks (task_id, presentation_id, user_id, status, webhook_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.PresentationID, t.UserID, t.Status, string(data), now, now)
	if err != nil {
		return fmt.Errorf("insert manus task: %w", err)
	}
	t.CreatedAt = time.Unix(now, 0).UTC()
	t.UpdatedAt = t.CreatedAt
	return nil
}

// GetTask fetches one task by external id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*ManusTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, presentation_id, user_id, status, webhook_data, created_at, updated_at
		 FROM manus_tasks WHERE task_id = ?`, taskID)

	var t ManusTask
	var data string
	var created, updated int64
	err := row.Scan(&t.TaskID, &t.PresentationID, &t.UserID, &t.Status, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan manus task: %w", err)
	}
	t.WebhookData = json.RawMessage(data)
	t.CreatedAt = time.Unix(created, 0).UTC()
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return &t, nil
}

// CompleteTask transitions running -> completed atomically. Returns false
// with no error when another writer already moved the task out of running:
// the caller must then skip all side effects (slide inserts, socket emits).
func (s *Store) CompleteTask(ctx context.Context, taskID string, webhookData json.RawMessage) (bool, error) {
	return s.finishTask(ctx, taskID, TaskCompleted, webhookData)
}

// FailTask transitions running -> failed atomically, same contract as
// CompleteTask.
func (s *Store) FailTask(ctx context.Context, taskID string, webhookData json.RawMessage) (bool, error) {
	return s.finishTask(ctx, taskID, TaskFailed, webhookData)
}

func (s *Store) finishTask(ctx context.Context, taskID, status string, webhookData json.RawMessage) (bool, error) {
	data := webhookData
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE manus_tasks SET status = ?, webhook_data = ?, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		status, string(data), nowUnix(), taskID, TaskRunning)
	if err != nil {
		return false, fmt.Errorf("finish manus task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// SaveTaskProgress stores the latest webhook payload on a still-running task
// so the status endpoint can report progress. No-op after terminal state.
func (s *Store) SaveTaskProgress(ctx context.Context, taskID string, webhookData json.RawMessage) error {
	if len(webhookData) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE manus_tasks SET webhook_data = ?, updated_at = ?
		 WHERE task_id = ? AND status = ?`,
		string(webhookData), nowUnix(), taskID, TaskRunning)
	if err != nil {
		return fmt.Errorf("save task progress: %w", err)
	}
	return nil
}
