package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
)

// ContextDocumentRepository stores one context document per user.
type ContextDocumentRepository struct {
	db *DB
}

// NewContextDocumentRepository creates a new context document repository
func NewContextDocumentRepository(db *DB) *ContextDocumentRepository {
	return &ContextDocumentRepository{db: db}
}

// GetContextDocument retrieves the live document for a user.
func (r *ContextDocumentRepository) GetContextDocument(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
	doc := &models.ContextDocument{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, content, source_recording_id, created_at, updated_at
		FROM context_documents
		WHERE user_id = $1
	`, userID).Scan(&doc.UserID, &doc.Content, &doc.SourceRecordingID, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("context document not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context document: %w", err)
	}
	return doc, nil
}

// UpsertContextDocument overwrites the user's document in place.
func (r *ContextDocumentRepository) UpsertContextDocument(ctx context.Context, doc *models.ContextDocument) error {
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO context_documents (user_id, content, source_recording_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			content = EXCLUDED.content,
			source_recording_id = EXCLUDED.source_recording_id,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, doc.UserID, doc.Content, doc.SourceRecordingID, now).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert context document: %w", err)
	}
	return nil
}

// DeleteContextDocument removes the user's document.
func (r *ContextDocumentRepository) DeleteContextDocument(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM context_documents WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete context document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("context document not found: %w", sql.ErrNoRows)
	}
	return nil
}
