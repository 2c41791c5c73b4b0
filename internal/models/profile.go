package models

import (
	"time"

	"github.com/google/uuid"
)

// UserContextProfile is the onboarding profile that personalizes extraction.
// Fields are updated independently by different subsystems.
type UserContextProfile struct {
	UserID            uuid.UUID `json:"user_id"`
	PreferredName     string    `json:"preferred_name"`
	Language          string    `json:"language"`
	Timezone          string    `json:"timezone"`
	Profession        string    `json:"profession"`
	CriticalArtifacts []string  `json:"critical_artifacts"`
	SocialPlatforms   []string  `json:"social_platforms"`
	NewsFocus         []string  `json:"news_focus"`
	HealthInterests   []string  `json:"health_interests"`
	SkincareSummary   string    `json:"skincare_summary"`
	HealthSummary     string    `json:"health_summary"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Location returns the profile timezone, or UTC when it is unset or unknown.
func (p *UserContextProfile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ContextDocument is the single live, per-user rendering of everything the
// extraction step should know about the user. It is overwritten, never appended.
type ContextDocument struct {
	UserID            uuid.UUID `json:"user_id"`
	Content           string    `json:"content"`
	SourceRecordingID *string   `json:"source_recording_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
