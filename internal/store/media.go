package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MediaAsset is one generated image or video in the library.
type MediaAsset struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"` // image, video
	URL       string          `json:"url"`
	Prompt    string          `json:"prompt,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateMediaAsset inserts an asset.
func (s *Store) CreateMediaAsset(ctx context.Context, a *MediaAsset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	meta := a.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}
	now := nowUnix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media_assets (id, user_id, kind, url, prompt, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Kind, a.URL, a.Prompt, string(meta), now)
	if err != nil {
		return fmt.Errorf("insert media asset: %w", err)
	}
	a.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// ListMediaAssets returns a user's assets, newest first.
func (s *Store) ListMediaAssets(ctx context.Context, userID string) ([]MediaAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, url, prompt, metadata, created_at
		 FROM media_assets WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var out []MediaAsset
	for rows.Next() {
		var a MediaAsset
		var meta string
		var created int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.URL, &a.Prompt, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		a.Metadata = json.RawMessage(meta)
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
