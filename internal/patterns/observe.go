// Package patterns learns per-user behavioral patterns from item events and
// serves advisory suggestions from them.
package patterns

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/timeresolve"
)

// EventKind says what happened to an item.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventCompleted EventKind = "completed"
	EventUpdated   EventKind = "updated"
)

// Changes lists the fields an update touched. Nil members were unchanged.
type Changes struct {
	Priority *models.Priority `json:"priority,omitempty"`
	Category *string          `json:"category,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
}

// ItemEvent is one durable change to a task or reminder. Exactly one of
// Task and Reminder is set.
type ItemEvent struct {
	Kind     EventKind        `json:"kind"`
	UserID   uuid.UUID        `json:"user_id"`
	Task     *models.Task     `json:"task,omitempty"`
	Reminder *models.Reminder `json:"reminder,omitempty"`
	Changes  *Changes         `json:"changes,omitempty"`
	At       time.Time        `json:"at"`
	// Timezone is the user's IANA zone used to bucket times of day.
	Timezone string `json:"timezone,omitempty"`
}

// Observation is one pattern hit derived from an event.
type Observation struct {
	PatternType models.PatternType
	Signature   string
	Data        map[string]any
}

const maxTagPairs = 10

// Time-of-day buckets with the clock time suggested for each.
var bucketClock = map[string]string{
	"morning":   "09:00",
	"afternoon": "14:00",
	"evening":   "18:00",
	"night":     "21:00",
}

func bucketOf(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

func (e ItemEvent) location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UpdateEvent builds the event for a change to an existing task. A
// completed task with no field changes is a completion event.
func UpdateEvent(userID uuid.UUID, task *models.Task, changes *Changes, timezone string, at time.Time) ItemEvent {
	kind := EventUpdated
	if task != nil && task.Status == models.TaskStatusCompleted && changes == nil {
		kind = EventCompleted
	}
	return ItemEvent{Kind: kind, UserID: userID, Task: task, Changes: changes, At: at, Timezone: timezone}
}

// Empty reports whether c touches no field.
func (c *Changes) Empty() bool {
	return c == nil || (c.Priority == nil && c.Category == nil && c.Tags == nil)
}

// Derive turns an event into observations. It is pure; the same event
// always yields the same observations.
func Derive(e ItemEvent) []Observation {
	switch e.Kind {
	case EventCreated:
		return deriveCreated(e)
	case EventCompleted:
		return deriveCompleted(e)
	case EventUpdated:
		return deriveUpdated(e)
	default:
		return nil
	}
}

func deriveCreated(e ItemEvent) []Observation {
	var obs []Observation
	switch {
	case e.Task != nil:
		t := e.Task
		if t.DueTime != nil {
			if hm, err := time.Parse(timeresolve.ClockLayout, *t.DueTime); err == nil {
				obs = append(obs, timingObservation("due", hm.Hour()))
			}
		}
		if t.DueDate != nil {
			if d, err := time.Parse(timeresolve.DateLayout, *t.DueDate); err == nil {
				day := strings.ToLower(d.Weekday().String())
				obs = append(obs, Observation{
					PatternType: models.PatternTypeTiming,
					Signature:   "weekday:" + day,
					Data:        map[string]any{"weekday": day},
				})
			}
		}
		category := deref(t.Category)
		if category != "" {
			obs = append(obs, categoryObservation(category))
		}
		obs = append(obs, priorityObservation(t.Priority, category))
		obs = append(obs, tagObservations(t.Tags, category)...)

	case e.Reminder != nil:
		r := e.Reminder
		obs = append(obs, timingObservation("reminder", r.ReminderTime.In(e.location()).Hour()))
		obs = append(obs, priorityObservation(r.Priority, ""))
		obs = append(obs, tagObservations(r.Tags, "")...)
		if r.IsRecurring {
			pattern := strings.ToLower(strings.TrimSpace(deref(r.RecurrencePattern)))
			if pattern == "" {
				pattern = "unspecified"
			}
			obs = append(obs, Observation{
				PatternType: models.PatternTypeRecurring,
				Signature:   "recurrence:" + pattern,
				Data:        map[string]any{"recurrence_pattern": pattern, "title": r.Title},
			})
		}
	}
	return obs
}

func deriveCompleted(e ItemEvent) []Observation {
	if e.Task == nil {
		return nil
	}
	t := e.Task
	done := e.At
	if t.CompletedAt != nil {
		done = *t.CompletedAt
	}
	done = done.In(e.location())

	bucket := bucketOf(done.Hour())
	obs := []Observation{{
		PatternType: models.PatternTypeCompletion,
		Signature:   "completed:" + bucket,
		Data:        map[string]any{"bucket": bucket},
	}}

	if t.DueDate != nil {
		if due, err := time.Parse(timeresolve.DateLayout, *t.DueDate); err == nil {
			doneDay := time.Date(done.Year(), done.Month(), done.Day(), 0, 0, 0, 0, time.UTC)
			delta := int(doneDay.Sub(due).Hours() / 24)
			habit := "on_time"
			switch {
			case delta < 0:
				habit = "early"
			case delta > 0:
				habit = "late"
			}
			obs = append(obs, Observation{
				PatternType: models.PatternTypeCompletion,
				Signature:   "punctuality:" + habit,
				Data:        map[string]any{"habit": habit, "delta_days": delta},
			})
		}
	}
	if category := deref(t.Category); category != "" {
		obs = append(obs, Observation{
			PatternType: models.PatternTypeCompletion,
			Signature:   "completed_category:" + normalizeKey(category),
			Data:        map[string]any{"category": category},
		})
	}
	return obs
}

func deriveUpdated(e ItemEvent) []Observation {
	if e.Changes == nil {
		return nil
	}
	category := ""
	if e.Task != nil {
		category = deref(e.Task.Category)
	}
	var obs []Observation
	if e.Changes.Category != nil && strings.TrimSpace(*e.Changes.Category) != "" {
		category = strings.TrimSpace(*e.Changes.Category)
		obs = append(obs, categoryObservation(category))
	}
	if e.Changes.Priority != nil {
		obs = append(obs, priorityObservation(*e.Changes.Priority, category))
	}
	if len(e.Changes.Tags) > 0 {
		obs = append(obs, tagObservations(e.Changes.Tags, category)...)
	}
	return obs
}

func timingObservation(source string, hour int) Observation {
	bucket := bucketOf(hour)
	return Observation{
		PatternType: models.PatternTypeTiming,
		Signature:   "time_of_day:" + bucket,
		Data:        map[string]any{"bucket": bucket, "source": source},
	}
}

func categoryObservation(category string) Observation {
	return Observation{
		PatternType: models.PatternTypeCategory,
		Signature:   normalizeKey(category),
		Data:        map[string]any{"category": category},
	}
}

func priorityObservation(p models.Priority, category string) Observation {
	sig := string(p)
	data := map[string]any{"priority": string(p)}
	if category != "" {
		sig = normalizeKey(category) + "|" + sig
		data["category"] = category
	}
	return Observation{PatternType: models.PatternTypePriority, Signature: sig, Data: data}
}

// tagObservations yields one observation per tag and one per unordered
// pair of tags, capped at maxTagPairs pairs.
func tagObservations(tags []string, category string) []Observation {
	uniq := uniqueKeys(tags)
	var obs []Observation
	for _, tag := range uniq {
		data := map[string]any{"tag": tag}
		if category != "" {
			data["category"] = category
		}
		obs = append(obs, Observation{PatternType: models.PatternTypeTags, Signature: "tag:" + tag, Data: data})
	}
	pairs := 0
	for i := 0; i < len(uniq) && pairs < maxTagPairs; i++ {
		for j := i + 1; j < len(uniq) && pairs < maxTagPairs; j++ {
			obs = append(obs, Observation{
				PatternType: models.PatternTypeTags,
				Signature:   fmt.Sprintf("pair:%s+%s", uniq[i], uniq[j]),
				Data:        map[string]any{"tags": []string{uniq[i], uniq[j]}},
			})
			pairs++
		}
	}
	return obs
}

func uniqueKeys(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		k := normalizeKey(t)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
