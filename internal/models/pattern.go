package models

import (
	"time"

	"github.com/google/uuid"
)

// PatternType classifies a behavioral pattern.
type PatternType string

const (
	PatternTypeTiming     PatternType = "timing"
	PatternTypeCategory   PatternType = "category"
	PatternTypePriority   PatternType = "priority"
	PatternTypeTags       PatternType = "tags"
	PatternTypeCompletion PatternType = "completion"
	PatternTypeRecurring  PatternType = "recurring"
)

// Valid reports whether t is a known pattern type.
func (t PatternType) Valid() bool {
	switch t {
	case PatternTypeTiming, PatternTypeCategory, PatternTypePriority,
		PatternTypeTags, PatternTypeCompletion, PatternTypeRecurring:
		return true
	default:
		return false
	}
}

// PatternSaturation is the frequency at which confidence reaches 1.0.
const PatternSaturation = 10

// ConfidenceFromFrequency maps an observation count to [0, 1].
func ConfidenceFromFrequency(frequency int) float64 {
	if frequency <= 0 {
		return 0
	}
	if frequency >= PatternSaturation {
		return 1
	}
	return float64(frequency) / PatternSaturation
}

// BehavioralPattern is keyed by (UserID, PatternType, Signature). Frequency
// only grows; ConfidenceScore is derived from it.
type BehavioralPattern struct {
	ID              uuid.UUID      `json:"id"`
	UserID          uuid.UUID      `json:"user_id"`
	PatternType     PatternType    `json:"pattern_type"`
	Signature       string         `json:"signature"`
	PatternData     map[string]any `json:"pattern_data"`
	Frequency       int            `json:"frequency"`
	ConfidenceScore float64        `json:"confidence_score"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
