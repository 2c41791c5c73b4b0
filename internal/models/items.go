package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority of a task, reminder or content prediction.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes s and reports whether it is a known priority.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	default:
		return "", false
	}
}

// ReminderType distinguishes reminders that are really tasks or todos.
type ReminderType string

const (
	ReminderTypeTask     ReminderType = "task"
	ReminderTypeTodo     ReminderType = "todo"
	ReminderTypeReminder ReminderType = "reminder"
)

// ParseReminderType normalizes s and reports whether it is a known type.
func ParseReminderType(s string) (ReminderType, bool) {
	t := ReminderType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ReminderTypeTask, ReminderTypeTodo, ReminderTypeReminder:
		return t, true
	default:
		return "", false
	}
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task is an actionable item. DueDate is "YYYY-MM-DD" and DueTime "HH:MM",
// both already resolved against the user's anchor.
type Task struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	SourceRecordingID *string    `json:"source_recording_id,omitempty"`
	Title             string     `json:"title"`
	Description       *string    `json:"description,omitempty"`
	Priority          Priority   `json:"priority"`
	DueDate           *string    `json:"due_date,omitempty"`
	DueTime           *string    `json:"due_time,omitempty"`
	Category          *string    `json:"category,omitempty"`
	Tags              []string   `json:"tags"`
	Status            TaskStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Reminder fires at an absolute instant.
type Reminder struct {
	ID                uuid.UUID    `json:"id"`
	UserID            uuid.UUID    `json:"user_id"`
	SourceRecordingID *string      `json:"source_recording_id,omitempty"`
	Title             string       `json:"title"`
	Description       *string      `json:"description,omitempty"`
	ReminderTime      time.Time    `json:"reminder_time"`
	IsRecurring       bool         `json:"is_recurring"`
	RecurrencePattern *string      `json:"recurrence_pattern,omitempty"`
	Tags              []string     `json:"tags"`
	Priority          Priority     `json:"priority"`
	Type              ReminderType `json:"type"`
	CreatedAt         time.Time    `json:"created_at"`
}

// HealthNote records a health observation.
type HealthNote struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	SourceRecordingID *string   `json:"source_recording_id,omitempty"`
	Content           string    `json:"content"`
	Category          string    `json:"category"`
	Tags              []string  `json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
}

// GeneralNote is free-form content that fits no other kind. It is returned
// to the caller but not persisted.
type GeneralNote struct {
	Content string `json:"content"`
}

// ContentPrediction is a guess that the user wants a piece of content drafted.
type ContentPrediction struct {
	ContentType    string   `json:"content_type"`
	Description    string   `json:"description"`
	Confidence     float64  `json:"confidence"`
	SuggestedTitle *string  `json:"suggested_title,omitempty"`
	TargetPlatform *string  `json:"target_platform,omitempty"`
	Priority       Priority `json:"priority"`
}

// Title returns the suggested title, or the description when none was given.
func (p ContentPrediction) Title() string {
	if p.SuggestedTitle != nil && strings.TrimSpace(*p.SuggestedTitle) != "" {
		return strings.TrimSpace(*p.SuggestedTitle)
	}
	return p.Description
}
