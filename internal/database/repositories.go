package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/content"
	"github.com/benvon/smart-voice/internal/contextdoc"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/notify"
	"github.com/benvon/smart-voice/internal/patterns"
)

// ItemRepositoryInterface defines the item operations used by the pipeline
// and handlers. This interface enables mock implementations in tests.
type ItemRepositoryInterface interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, userID, id uuid.UUID, changes *patterns.Changes, at time.Time) (*models.Task, error)
	CompleteTask(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID, status *models.TaskStatus, limit int) ([]*models.Task, error)
	CreateReminder(ctx context.Context, r *models.Reminder) error
	CreateHealthNote(ctx context.Context, n *models.HealthNote) error
}

// TranscriptRepositoryInterface defines transcript and upload operations.
type TranscriptRepositoryInterface interface {
	CreateTranscript(ctx context.Context, t *models.VoiceTranscript) error
	ListTranscriptsSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.VoiceTranscript, error)
	CreateUpload(ctx context.Context, u *models.VoiceUpload) error
	GetUpload(ctx context.Context, userID, id uuid.UUID) (*models.VoiceUpload, error)
	UpdateUploadStatus(ctx context.Context, id uuid.UUID, status models.UploadStatus, transcription *string) error
	ListUploads(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.VoiceUpload, int, error)
}

// ProfileRepositoryInterface defines profile operations.
type ProfileRepositoryInterface interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error)
	UpsertProfile(ctx context.Context, p *models.UserContextProfile) error
}

// Ensure concrete types implement the interfaces
var (
	_ ItemRepositoryInterface       = (*ItemRepository)(nil)
	_ TranscriptRepositoryInterface = (*TranscriptRepository)(nil)
	_ ProfileRepositoryInterface    = (*ProfileRepository)(nil)
	_ contextdoc.ProfileReader      = (*ProfileRepository)(nil)
	_ contextdoc.TranscriptReader   = (*TranscriptRepository)(nil)
	_ contextdoc.ContentTitleReader = (*ContentRepository)(nil)
	_ contextdoc.Store              = (*ContextDocumentRepository)(nil)
	_ patterns.Store                = (*PatternRepository)(nil)
	_ content.Repository            = (*ContentRepository)(nil)
	_ notify.Repository             = (*ContentRepository)(nil)
)
