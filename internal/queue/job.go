package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeLearnPatterns feeds item events from one voice note into the pattern learner.
	JobTypeLearnPatterns JobType = "learn_patterns"
	// JobTypeGenerateContent drafts the content planned for one voice note.
	JobTypeGenerateContent JobType = "generate_content"
)

// DefaultMaxRetries bounds redeliveries before a job goes to the DLQ.
const DefaultMaxRetries = 3

// Job represents a job in the queue. Payload is the JSON encoding of the
// type-specific body.
type Job struct {
	ID                uuid.UUID       `json:"id"`
	Type              JobType         `json:"type"`
	UserID            uuid.UUID       `json:"user_id"`
	SourceRecordingID *string         `json:"source_recording_id,omitempty"`
	NotBefore         *time.Time      `json:"not_before,omitempty"` // nil = immediate
	NotAfter          *time.Time      `json:"not_after,omitempty"`  // nil = no expiration
	Payload           json.RawMessage `json:"payload,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	RetryCount        int             `json:"retry_count"`
	MaxRetries        int             `json:"max_retries"`
}

// NewJob creates a new job carrying payload.
func NewJob(jobType JobType, userID uuid.UUID, payload any) (*Job, error) {
	job := &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
		}
		job.Payload = raw
	}
	return job, nil
}

// DecodePayload unmarshals the payload into v.
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// Retry returns a copy scheduled for notBefore with the retry count
// incremented. payload replaces the original when non-nil.
func (j *Job) Retry(notBefore time.Time, payload json.RawMessage) *Job {
	next := *j
	next.NotBefore = &notBefore
	next.RetryCount = j.RetryCount + 1
	if payload != nil {
		next.Payload = payload
	}
	return &next
}
