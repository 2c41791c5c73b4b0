package models

import (
	"testing"
	"time"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Priority
		wantOK bool
	}{
		{"urgent", PriorityUrgent, true},
		{" HIGH ", PriorityHigh, true},
		{"medium", PriorityMedium, true},
		{"low", PriorityLow, true},
		{"critical", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePriority(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParsePriority(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseReminderType(t *testing.T) {
	t.Parallel()

	if got, ok := ParseReminderType("Todo"); !ok || got != ReminderTypeTodo {
		t.Errorf("ParseReminderType(Todo) = %q, %v", got, ok)
	}
	if _, ok := ParseReminderType("alarm"); ok {
		t.Error("ParseReminderType(alarm) should not be valid")
	}
}

func TestConfidenceFromFrequency(t *testing.T) {
	t.Parallel()

	prev := 0.0
	for f := 1; f <= 25; f++ {
		c := ConfidenceFromFrequency(f)
		if c < prev {
			t.Fatalf("confidence decreased at frequency %d: %v < %v", f, c, prev)
		}
		if c < 0 || c > 1 {
			t.Fatalf("confidence out of range at frequency %d: %v", f, c)
		}
		prev = c
	}
	if got := ConfidenceFromFrequency(PatternSaturation); got != 1.0 {
		t.Errorf("ConfidenceFromFrequency(%d) = %v, want 1.0", PatternSaturation, got)
	}
	if got := ConfidenceFromFrequency(0); got != 0 {
		t.Errorf("ConfidenceFromFrequency(0) = %v, want 0", got)
	}
}

func TestPatternType_Valid(t *testing.T) {
	t.Parallel()

	for _, pt := range []PatternType{
		PatternTypeTiming, PatternTypeCategory, PatternTypePriority,
		PatternTypeTags, PatternTypeCompletion, PatternTypeRecurring,
	} {
		if !pt.Valid() {
			t.Errorf("%s should be valid", pt)
		}
	}
	if PatternType("mood").Valid() {
		t.Error("mood should not be valid")
	}
}

func TestUserContextProfile_Location(t *testing.T) {
	t.Parallel()

	var nilProfile *UserContextProfile
	if nilProfile.Location() != time.UTC {
		t.Error("nil profile should fall back to UTC")
	}
	if (&UserContextProfile{Timezone: "Not/AZone"}).Location() != time.UTC {
		t.Error("unknown timezone should fall back to UTC")
	}
	if got := (&UserContextProfile{Timezone: "UTC"}).Location().String(); got != "UTC" {
		t.Errorf("Location() = %q, want UTC", got)
	}
}

func TestContentPrediction_Title(t *testing.T) {
	t.Parallel()

	title := "Weekly recap"
	p := ContentPrediction{Description: "a recap post", SuggestedTitle: &title}
	if p.Title() != "Weekly recap" {
		t.Errorf("Title() = %q", p.Title())
	}
	p.SuggestedTitle = nil
	if p.Title() != "a recap post" {
		t.Errorf("Title() without suggestion = %q", p.Title())
	}
}
