package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
)

// TranscriptRepository handles voice transcripts and uploads.
type TranscriptRepository struct {
	db *DB
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// CreateTranscript inserts a transcript. A zero ID is assigned.
func (r *TranscriptRepository) CreateTranscript(ctx context.Context, t *models.VoiceTranscript) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO voice_transcripts (id, user_id, raw_text, cleaned_text, language, duration_seconds, source_recording_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.RawText, t.CleanedText, t.Language, t.DurationSeconds, t.SourceRecordingID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}
	return nil
}

// ListTranscriptsSince lists transcripts created at or after since, newest first.
func (r *TranscriptRepository) ListTranscriptsSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.VoiceTranscript, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, raw_text, cleaned_text, language, duration_seconds, source_recording_id, created_at
		FROM voice_transcripts
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, since, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.VoiceTranscript
	for rows.Next() {
		t := &models.VoiceTranscript{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.RawText, &t.CleanedText, &t.Language, &t.DurationSeconds, &t.SourceRecordingID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcripts: %w", err)
	}
	return out, nil
}

// CreateUpload records an accepted upload.
func (r *TranscriptRepository) CreateUpload(ctx context.Context, u *models.VoiceUpload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO voice_uploads (id, user_id, object_key, mime_type, size_bytes, status, transcription, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING created_at, updated_at
	`, u.ID, u.UserID, u.ObjectKey, u.MimeType, u.SizeBytes, u.Status, u.Transcription, now).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetUpload retrieves an upload owned by userID.
func (r *TranscriptRepository) GetUpload(ctx context.Context, userID, id uuid.UUID) (*models.VoiceUpload, error) {
	u := &models.VoiceUpload{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, object_key, mime_type, size_bytes, status, transcription, created_at, updated_at
		FROM voice_uploads
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&u.ID, &u.UserID, &u.ObjectKey, &u.MimeType, &u.SizeBytes, &u.Status, &u.Transcription, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("upload not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return u, nil
}

// UpdateUploadStatus sets the status and, when given, the transcription.
func (r *TranscriptRepository) UpdateUploadStatus(ctx context.Context, id uuid.UUID, status models.UploadStatus, transcription *string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE voice_uploads
		SET status = $2, transcription = COALESCE($3, transcription), updated_at = $4
		WHERE id = $1
	`, id, status, transcription, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update upload status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("upload not found: %w", sql.ErrNoRows)
	}
	return nil
}

// ListUploads returns a page of uploads, newest first, with the total count.
func (r *TranscriptRepository) ListUploads(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.VoiceUpload, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM voice_uploads WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count uploads: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, object_key, mime_type, size_bytes, status, transcription, created_at, updated_at
		FROM voice_uploads
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.VoiceUpload
	for rows.Next() {
		u := &models.VoiceUpload{}
		if err := rows.Scan(&u.ID, &u.UserID, &u.ObjectKey, &u.MimeType, &u.SizeBytes, &u.Status, &u.Transcription, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan upload: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating uploads: %w", err)
	}
	return out, total, nil
}
