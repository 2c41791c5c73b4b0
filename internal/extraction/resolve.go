package extraction

import (
	"strings"
	"time"

	"github.com/benvon/smart-voice/internal/timeresolve"
)

// defaultReminderHour is used when a reminder resolves to a date only.
const defaultReminderHour = 9

// staleSlack tolerates model instants slightly behind the anchor.
const staleSlack = time.Minute

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func resolveExpr(expr *string, a timeresolve.Anchor) timeresolve.Resolution {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return timeresolve.Resolution{Confidence: timeresolve.Low}
	}
	return timeresolve.Resolve(*expr, a)
}

func parseModelDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	v := strings.TrimSpace(*s)
	if len(v) >= len(timeresolve.DateLayout) {
		if d, err := time.Parse(timeresolve.DateLayout, v[:len(timeresolve.DateLayout)]); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseModelInstant(s *string, loc *time.Location) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func dateString(t time.Time) *string {
	s := t.Format(timeresolve.DateLayout)
	return &s
}

// resolveTaskTime decides the persisted due date and time. A high-confidence
// deterministic resolution of the spoken phrase wins over the model. A model
// date before the anchor day is treated as drift when the phrase resolves.
// Anything still relative is resolved or dropped, never persisted as text.
func resolveTaskTime(t ContractTask, a timeresolve.Anchor) (dueDate, dueTime *string) {
	res := resolveExpr(t.TimeExpression, a)
	high := res.Confidence == timeresolve.High

	switch modelDate, ok := parseModelDate(t.DueDate); {
	case high && res.Date != nil:
		dueDate = dateString(*res.Date)
	case ok && (res.Date == nil || !modelDate.Before(dateOnly(a.Today()))):
		dueDate = dateString(modelDate)
	case res.Date != nil:
		dueDate = dateString(*res.Date)
	case t.DueDate != nil:
		// The model leaked a phrase into the date field.
		if leaked := timeresolve.Resolve(*t.DueDate, a); leaked.Date != nil {
			dueDate = dateString(*leaked.Date)
		}
	}

	switch {
	case high && res.Time != nil:
		dueTime = res.Time
	case t.DueTime != nil:
		if hm, ok := timeresolve.ParseClock(*t.DueTime); ok {
			dueTime = &hm
		} else if res.Time != nil {
			dueTime = res.Time
		}
	case res.Time != nil:
		dueTime = res.Time
	}

	// A time of day without a day means its next occurrence.
	if dueDate == nil && dueTime != nil {
		if next := timeresolve.Resolve(*dueTime, a); next.Date != nil {
			dueDate = dateString(*next.Date)
		}
	}
	return dueDate, dueTime
}

// resolveReminderTime returns the absolute firing instant, or false when the
// reminder has no resolvable time and must be rejected.
func resolveReminderTime(r ContractReminder, a timeresolve.Anchor) (time.Time, bool) {
	res := resolveExpr(r.TimeExpression, a)
	if res.Confidence == timeresolve.High && res.At != nil {
		return *res.At, true
	}

	if at, ok := parseModelInstant(r.ReminderTime, a.Location()); ok {
		if res.At != nil && at.Before(a.Now().Add(-staleSlack)) {
			return *res.At, true
		}
		return at, true
	}

	if res.At != nil {
		return *res.At, true
	}
	if res.Date != nil {
		return atHour(*res.Date, defaultReminderHour), true
	}

	if r.ReminderTime != nil {
		leaked := timeresolve.Resolve(*r.ReminderTime, a)
		switch {
		case leaked.At != nil:
			return *leaked.At, true
		case leaked.Date != nil:
			return atHour(*leaked.Date, defaultReminderHour), true
		}
	}
	return time.Time{}, false
}

func atHour(d time.Time, hour int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, d.Location())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
