package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Presentation statuses. StatusReady is the canonical terminal success state;
// "completed" appears in rows written by older deployments and is normalized
// to "ready" on read, never written.
const (
	StatusGenerating      = "generating"
	StatusPlanning        = "planning"
	StatusTopicsGenerated = "topics_generated"
	StatusReady           = "ready"
	StatusError           = "error"

	legacyStatusCompleted = "completed"
)

// Presentation is one deck generation job.
type Presentation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Prompt      string    `json:"prompt"`
	Status      string    `json:"status"`
	TaskID      string    `json:"task_id,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	SlidesCount int       `json:"slides_count"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Slide is one persisted slide of a presentation.
type Slide struct {
	ID             string          `json:"id"`
	PresentationID string          `json:"presentation_id"`
	Position       int             `json:"position"`
	Title          string          `json:"title"`
	Content        json.RawMessage `json:"content,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
}

// CreatePresentation inserts a new presentation row.
func (s *Store) CreatePresentation(ctx context.Context, p *Presentation) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = StatusGenerating
	}
	now := nowUnix()
	topics, err := json.Marshal(orEmpty(p.Topics))
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO presentations (id, user_id, prompt, status, task_id, topics, slides_count, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Prompt, p.Status, p.TaskID, string(topics), p.SlidesCount, p.Error, now, now)
	if err != nil {
		return fmt.Errorf("insert presentation: %w", err)
	}
	p.CreatedAt = time.Unix(now, 0).UTC()
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetPresentation fetches one presentation by id.
func (s *Store) GetPresentation(ctx context.Context, id string) (*Presentation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, prompt, status, task_id, topics, slides_count, error, created_at, updated_at
		 FROM presentations WHERE id = ?`, id)
	return scanPresentation(row)
}

// GetPresentationByTask fetches the presentation owning a task id.
func (s *Store) GetPresentationByTask(ctx context.Context, taskID string) (*Presentation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, prompt, status, task_id, topics, slides_count, error, created_at, updated_at
		 FROM presentations WHERE task_id = ?`, taskID)
	return scanPresentation(row)
}

// ListPresentations returns a user's presentations, newest first.
func (s *Store) ListPresentations(ctx context.Context, userID string) ([]*Presentation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, prompt, status, task_id, topics, slides_count, error, created_at, updated_at
		 FROM presentations WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list presentations: %w", err)
	}
	defer rows.Close()

	var out []*Presentation
	for rows.Next() {
		p, err := scanPresentation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePresentationStatus sets the status (and optional error message).
func (s *Store) UpdatePresentationStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presentations SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("update presentation status: %w", err)
	}
	return requireRow(res)
}

// SetPresentationTask records the external task id after dispatch.
func (s *Store) SetPresentationTask(ctx context.Context, id, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE presentations SET task_id = ?, updated_at = ? WHERE id = ?`,
		taskID, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("set presentation task: %w", err)
	}
	return requireRow(res)
}

// SetPresentationTopics stores the topic plan and advances the status.
func (s *Store) SetPresentationTopics(ctx context.Context, id string, topics []string) error {
	data, err := json.Marshal(orEmpty(topics))
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE presentations SET topics = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(data), StatusTopicsGenerated, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("set presentation topics: %w", err)
	}
	return requireRow(res)
}

// FinishPresentation persists the slide set and flips the presentation to
// ready in one transaction. A late insert failure rolls the whole thing back
// so a ready presentation can never have zero slides.
func (s *Store) FinishPresentation(ctx context.Context, presentationID string, slides []Slide) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer tx.Rollback()

	now := nowUnix()
	for i := range slides {
		slide := &slides[i]
		if slide.ID == "" {
			slide.ID = uuid.New().String()
		}
		slide.PresentationID = presentationID
		slide.Position = i
		content := slide.Content
		if len(content) == 0 {
			content = json.RawMessage("{}")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slides (id, presentation_id, position, title, content, image_url, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			slide.ID, presentationID, slide.Position, slide.Title, string(content), slide.ImageURL, now); err != nil {
			return fmt.Errorf("insert slide %d: %w", i, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE presentations SET status = ?, slides_count = ?, error = '', updated_at = ? WHERE id = ?`,
		StatusReady, len(slides), now, presentationID)
	if err != nil {
		return fmt.Errorf("finish presentation: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// ListSlides returns a presentation's slides in order.
func (s *Store) ListSlides(ctx context.Context, presentationID string) ([]Slide, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, presentation_id, position, title, content, image_url
		 FROM slides WHERE presentation_id = ? ORDER BY position`, presentationID)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	defer rows.Close()

	var out []Slide
	for rows.Next() {
		var sl Slide
		var content string
		if err := rows.Scan(&sl.ID, &sl.PresentationID, &sl.Position, &sl.Title, &content, &sl.ImageURL); err != nil {
			return nil, fmt.Errorf("scan slide: %w", err)
		}
		sl.Content = json.RawMessage(content)
		out = append(out, sl)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPresentation(row rowScanner) (*Presentation, error) {
	var p Presentation
	var topics string
	var created, updated int64
	err := row.Scan(&p.ID, &p.UserID, &p.Prompt, &p.Status, &p.TaskID, &topics, &p.SlidesCount, &p.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan presentation: %w", err)
	}
	if p.Status == legacyStatusCompleted {
		p.Status = StatusReady
	}
	if err := json.Unmarshal([]byte(topics), &p.Topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func orEmpty(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}
