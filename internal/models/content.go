package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationType records why a piece of content was drafted.
type GenerationType string

const (
	// GenerationTypeExplicit is used when the user all but asked for the content.
	GenerationTypeExplicit GenerationType = "explicit"
	// GenerationTypeProactive is used for lower-confidence guesses.
	GenerationTypeProactive GenerationType = "proactive"
)

// ContentStatus tracks a generated content record.
type ContentStatus string

const (
	ContentStatusPending ContentStatus = "pending"
	ContentStatusDrafted ContentStatus = "drafted"
	ContentStatusFailed  ContentStatus = "failed"
	// ContentStatusPreview marks a prediction returned by a dry run; nothing is stored.
	ContentStatusPreview ContentStatus = "preview"
)

// GeneratedContent is a drafted document derived from a content prediction.
// Brief is the prediction description the draft was written from.
type GeneratedContent struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"user_id"`
	SourceRecordingID *string        `json:"source_recording_id,omitempty"`
	Title             string         `json:"title"`
	ContentType       string         `json:"content_type"`
	Brief             string         `json:"brief"`
	Language          string         `json:"language"`
	TargetPlatform    *string        `json:"target_platform,omitempty"`
	Body              string         `json:"body"`
	PreviewText       string         `json:"preview_text"`
	GenerationType    GenerationType `json:"generation_type"`
	Confidence        float64        `json:"confidence"`
	Status            ContentStatus  `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NotificationKind identifies what a notification is about.
type NotificationKind string

const NotificationKindContentDrafted NotificationKind = "content_drafted"

// Notification is an outbox record picked up by the dispatcher.
type Notification struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	ReferenceID *uuid.UUID       `json:"reference_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
}
