package models

import (
	"time"

	"github.com/google/uuid"
)

// VoiceTranscript is created once per voice note and is immutable after cleaning.
type VoiceTranscript struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	RawText           string    `json:"raw_text"`
	CleanedText       string    `json:"cleaned_text"`
	Language          string    `json:"language"`
	DurationSeconds   float64   `json:"duration_seconds"`
	SourceRecordingID *string   `json:"source_recording_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// UploadStatus tracks a stored voice upload through processing.
type UploadStatus string

const (
	UploadStatusStored    UploadStatus = "stored"
	UploadStatusProcessed UploadStatus = "processed"
	UploadStatusFailed    UploadStatus = "failed"
)

// VoiceUpload is an audio file accepted by the upload endpoint.
type VoiceUpload struct {
	ID            uuid.UUID    `json:"id"`
	UserID        uuid.UUID    `json:"user_id"`
	ObjectKey     string       `json:"object_key"`
	MimeType      string       `json:"mime_type"`
	SizeBytes     int64        `json:"size_bytes"`
	Status        UploadStatus `json:"status"`
	Transcription *string      `json:"transcription,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
