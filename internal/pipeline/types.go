// Package pipeline turns one voice note into persisted, structured items.
package pipeline

import (
	"errors"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
)

var (
	// ErrInvalidRequest is returned for requests that fail validation.
	ErrInvalidRequest = errors.New("invalid pipeline request")
	// ErrTranscription is returned when no usable transcript was produced.
	ErrTranscription = errors.New("transcription failed")
	// ErrAllPersistenceFailed is returned when items were extracted but none could be stored.
	ErrAllPersistenceFailed = errors.New("all extracted items failed to persist")
)

// Request is the pipeline entry contract. Exactly one of AudioURL and
// AudioBase64 is used; the URL wins when both are set.
type Request struct {
	UserID            uuid.UUID `json:"userId" validate:"required"`
	AudioURL          string    `json:"audioUrl,omitempty" validate:"omitempty,url"`
	AudioBase64       string    `json:"audioBase64,omitempty"`
	MimeType          string    `json:"mimeType" validate:"required,audio_mime"`
	SourceRecordingID *string   `json:"sourceRecordingId,omitempty" validate:"omitempty,max=255"`
	// SkipSaveItems runs extraction without any side effect.
	SkipSaveItems bool `json:"skipSaveItems,omitempty"`
}

// ExtractedItems are the items of one run. After persistence they hold
// only the items that were stored.
type ExtractedItems struct {
	Tasks          []models.Task        `json:"tasks"`
	Reminders      []models.Reminder    `json:"reminders"`
	HealthNotes    []models.HealthNote  `json:"healthNotes"`
	GeneralNotes   []models.GeneralNote `json:"generalNotes"`
	Summary        string               `json:"summary"`
	Degraded       bool                 `json:"degraded,omitempty"`
	DegradedReason string               `json:"degradedReason,omitempty"`
}

// GeneratedContentRef points at a draft scheduled by this run. DocumentID
// is unset for dry runs.
type GeneratedContentRef struct {
	DocumentID  *uuid.UUID           `json:"documentId,omitempty"`
	Title       string               `json:"title"`
	ContentType string               `json:"contentType"`
	PreviewText string               `json:"previewText"`
	Status      models.ContentStatus `json:"status"`
}

// Result is the pipeline outcome. Success is false only for transcription
// failure or when every extracted item failed to persist.
type Result struct {
	Success          bool                  `json:"success"`
	RunID            string                `json:"runId"`
	Transcription    string                `json:"transcription,omitempty"`
	Language         string                `json:"language,omitempty"`
	ExtractedItems   *ExtractedItems       `json:"extractedItems,omitempty"`
	GeneratedContent []GeneratedContentRef `json:"generatedContent,omitempty"`
	Error            string                `json:"error,omitempty"`
}

// persistStats counts per-item persistence outcomes.
type persistStats struct {
	attempted int
	persisted int
}
