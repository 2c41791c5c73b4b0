package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("priority", validatePriority); err != nil {
		panic(fmt.Sprintf("failed to register priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("reminder_type", validateReminderType); err != nil {
		panic(fmt.Sprintf("failed to register reminder_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("pattern_type", validatePatternType); err != nil {
		panic(fmt.Sprintf("failed to register pattern_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("audio_mime", validateAudioMime); err != nil {
		panic(fmt.Sprintf("failed to register audio_mime validator: %v", err))
	}
}

func validatePriority(fl validator.FieldLevel) bool {
	_, ok := models.ParsePriority(fl.Field().String())
	return ok
}

func validateReminderType(fl validator.FieldLevel) bool {
	_, ok := models.ParseReminderType(fl.Field().String())
	return ok
}

func validatePatternType(fl validator.FieldLevel) bool {
	return models.PatternType(fl.Field().String()).Valid()
}

// audioMimeTypes are the accepted pipeline input formats, by subtype.
var audioMimeTypes = map[string]bool{
	"webm": true, "mpeg": true, "mp3": true, "mp4": true,
	"wav": true, "ogg": true, "flac": true,
}

// validateAudioMime accepts "audio/<subtype>" (parameters ignored) or a bare subtype.
func validateAudioMime(fl validator.FieldLevel) bool {
	v := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	v = strings.TrimPrefix(v, "audio/")
	v = strings.TrimPrefix(v, "x-")
	return audioMimeTypes[v]
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeTags trims, drops empty and de-duplicates tags case-insensitively,
// keeping the first spelling seen.
func SanitizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = SanitizeText(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// ValidatePriority validates a Priority string value
func ValidatePriority(value string) error {
	if _, ok := models.ParsePriority(value); !ok {
		return fmt.Errorf("invalid priority: %s (must be 'urgent', 'high', 'medium', or 'low')", value)
	}
	return nil
}

// ValidatePatternType validates a PatternType string value
func ValidatePatternType(value string) error {
	if !models.PatternType(value).Valid() {
		return fmt.Errorf("invalid pattern_type: %s (must be 'timing', 'category', 'priority', 'tags', 'completion', or 'recurring')", value)
	}
	return nil
}
