package models

import "time"

// RatelimitScope names a group of routes sharing one limiter rate.
type RatelimitScope string

const (
	// RatelimitScopeAPI applies per caller to every JSON API route.
	RatelimitScopeAPI RatelimitScope = "api"
	// RatelimitScopeVoice applies per user to voice note submission.
	RatelimitScopeVoice RatelimitScope = "voice"
)

// Valid reports whether s is a known scope.
func (s RatelimitScope) Valid() bool {
	return s == RatelimitScopeAPI || s == RatelimitScopeVoice
}

// RatelimitConfig holds the limiter rate (e.g. "5-S", "100-M") for a scope.
type RatelimitConfig struct {
	Scope     RatelimitScope `json:"scope"`
	Rate      string         `json:"rate"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
