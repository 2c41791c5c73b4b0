package timeresolve

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format for resolved dates.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format for resolved times of day (24-hour).
	ClockLayout = "15:04"
)

// Anchor is the caller's "now" in their own timezone. Every relative
// expression is resolved against it, and its worked examples are injected
// into extraction prompts so the model never falls back to a recalled date.
type Anchor struct {
	now time.Time
}

// NewAnchor pins now to loc. A nil location means UTC.
func NewAnchor(now time.Time, loc *time.Location) Anchor {
	if loc == nil {
		loc = time.UTC
	}
	return Anchor{now: now.In(loc)}
}

// Now returns the anchor instant in the anchor location.
func (a Anchor) Now() time.Time { return a.now }

// Location returns the anchor timezone.
func (a Anchor) Location() *time.Location { return a.now.Location() }

// Today returns local midnight of the anchor day.
func (a Anchor) Today() time.Time {
	return a.AddDays(0)
}

// AddDays returns local midnight n calendar days after the anchor day.
// Calendar arithmetic keeps DST transitions from shifting the date.
func (a Anchor) AddDays(n int) time.Time {
	y, m, d := a.now.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, a.now.Location())
}

// Example is one worked relative-time resolution.
type Example struct {
	Expression string
	Resolved   string
}

var exampleExpressions = []string{
	"today",
	"tomorrow",
	"day after tomorrow",
	"in 30 minutes",
	"in 2 hours",
	"tomorrow at 3pm",
	"this week",
	"next week",
	"in 3 days",
}

// Examples resolves a fixed set of expressions against the anchor. They are
// computed through Resolve so the prompt and the post-resolution step agree.
func (a Anchor) Examples() []Example {
	out := make([]Example, 0, len(exampleExpressions)+1)
	for _, expr := range exampleExpressions {
		out = append(out, Example{Expression: expr, Resolved: Resolve(expr, a).String()})
	}
	weekday := strings.ToLower(a.AddDays(2).Weekday().String())
	expr := "next " + weekday
	out = append(out, Example{Expression: expr, Resolved: Resolve(expr, a).String()})
	return out
}

// PromptBlock renders the anchor and its worked examples for an LLM prompt.
func (a Anchor) PromptBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s (%s)\n", a.now.Format(DateLayout), a.now.Weekday())
	fmt.Fprintf(&b, "Current time: %s\n", a.now.Format(ClockLayout))
	fmt.Fprintf(&b, "Timezone: %s\n", a.now.Location())
	b.WriteString("Worked examples computed from the current date and time:\n")
	for _, ex := range a.Examples() {
		fmt.Fprintf(&b, "- %q -> %s\n", ex.Expression, ex.Resolved)
	}
	return b.String()
}
