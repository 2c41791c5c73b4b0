package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
)

// ContentRepository stores generated content and notifications.
type ContentRepository struct {
	db *DB
}

// NewContentRepository creates a new content repository
func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// CreateGeneratedContent inserts a content record. A zero ID is assigned.
func (r *ContentRepository) CreateGeneratedContent(ctx context.Context, c *models.GeneratedContent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO generated_content (id, user_id, source_recording_id, title, content_type, brief,
			language, target_platform, body, preview_text, generation_type, confidence, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING created_at, updated_at
	`,
		c.ID,
		c.UserID,
		c.SourceRecordingID,
		c.Title,
		c.ContentType,
		c.Brief,
		c.Language,
		c.TargetPlatform,
		c.Body,
		c.PreviewText,
		c.GenerationType,
		c.Confidence,
		c.Status,
		now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create generated content: %w", err)
	}
	return nil
}

// RecentContentTitles lists titles of the user's drafted content, newest first.
func (r *ContentRepository) RecentContentTitles(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT title FROM generated_content
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, models.ContentStatusDrafted, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list content titles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan content title: %w", err)
		}
		out = append(out, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content titles: %w", err)
	}
	return out, nil
}

// CreateNotification inserts an outbox record.
func (r *ContentRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, n.ID, n.UserID, n.Kind, n.Title, n.Body, n.ReferenceID, time.Now()).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
