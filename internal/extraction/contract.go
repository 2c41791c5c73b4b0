// Package extraction turns a cleaned transcript into structured items with a
// single function-constrained model call.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benvon/smart-voice/internal/services/ai"
)

// FunctionName is the only function the model may answer with.
const FunctionName = "record_voice_note_items"

var (
	// ErrNoContract means the model answered without calling FunctionName.
	ErrNoContract = errors.New("model did not call the extraction function")
	// ErrMalformedContract means the function arguments could not be decoded.
	ErrMalformedContract = errors.New("extraction function arguments are malformed")
)

// ContractTask is a task as emitted by the model, before time resolution.
type ContractTask struct {
	Title          string   `json:"title" validate:"required,max=500"`
	Description    *string  `json:"description"`
	Priority       string   `json:"priority"`
	DueDate        *string  `json:"due_date"`
	DueTime        *string  `json:"due_time"`
	TimeExpression *string  `json:"time_expression"`
	Category       *string  `json:"category" validate:"omitempty,max=100"`
	Tags           []string `json:"tags" validate:"max=20"`
}

// ContractReminder is a reminder as emitted by the model.
type ContractReminder struct {
	Title             string   `json:"title" validate:"required,max=500"`
	Description       *string  `json:"description"`
	ReminderTime      *string  `json:"reminder_time"`
	TimeExpression    *string  `json:"time_expression"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern"`
	Tags              []string `json:"tags" validate:"max=20"`
	Priority          string   `json:"priority"`
	Type              string   `json:"type"`
}

// ContractHealthNote is a health observation as emitted by the model.
type ContractHealthNote struct {
	Content  string   `json:"content" validate:"required"`
	Category string   `json:"category"`
	Tags     []string `json:"tags" validate:"max=20"`
}

// ContractGeneralNote is a free-form note.
type ContractGeneralNote struct {
	Content string `json:"content" validate:"required"`
}

// ContractPrediction is a content prediction as emitted by the model.
type ContractPrediction struct {
	ContentType    string  `json:"content_type" validate:"required,max=100"`
	Description    string  `json:"description" validate:"required"`
	Confidence     float64 `json:"confidence"`
	SuggestedTitle *string `json:"suggested_title"`
	TargetPlatform *string `json:"target_platform"`
	Priority       string  `json:"priority"`
}

// Contract is the decoded argument object of FunctionName.
type Contract struct {
	Tasks              []ContractTask        `json:"tasks"`
	Reminders          []ContractReminder    `json:"reminders"`
	HealthNotes        []ContractHealthNote  `json:"health_notes"`
	GeneralNotes       []ContractGeneralNote `json:"general_notes"`
	ContentPredictions []ContractPrediction  `json:"content_predictions"`
	Summary            string                `json:"summary"`
}

// Outcome discriminates the result of parsing a model response.
type Outcome int

const (
	// OutcomeParsed means a Contract was decoded.
	OutcomeParsed Outcome = iota
	// OutcomeMissing means the model did not call the function.
	OutcomeMissing
	// OutcomeMalformed means the function was called with undecodable arguments.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeParsed:
		return "parsed"
	case OutcomeMissing:
		return "no_contract"
	case OutcomeMalformed:
		return "malformed_contract"
	default:
		return "unknown"
	}
}

// Parsed is the typed result of ParseContract. Contract is set only for
// OutcomeParsed; Err is set otherwise.
type Parsed struct {
	Outcome  Outcome
	Contract *Contract
	Err      error
	// StringEncoded reports that the arguments arrived as a JSON string
	// wrapping the object rather than the object itself.
	StringEncoded bool
}

// ParseContract decodes a function response. The arguments must be a JSON
// object, or a JSON string whose content is a JSON object; anything else is
// malformed.
func ParseContract(resp *ai.FunctionResponse) Parsed {
	if resp == nil || !resp.Called || resp.Name != FunctionName {
		return Parsed{Outcome: OutcomeMissing, Err: ErrNoContract}
	}

	args := bytes.TrimSpace(resp.Arguments)
	var stringEncoded bool
	if len(args) > 0 && args[0] == '"' {
		var inner string
		if err := json.Unmarshal(args, &inner); err != nil {
			return Parsed{Outcome: OutcomeMalformed, Err: fmt.Errorf("%w: %w", ErrMalformedContract, err)}
		}
		args = bytes.TrimSpace([]byte(inner))
		stringEncoded = true
	}
	if len(args) == 0 || args[0] != '{' {
		return Parsed{Outcome: OutcomeMalformed, Err: fmt.Errorf("%w: arguments are not an object", ErrMalformedContract)}
	}

	var c Contract
	if err := json.Unmarshal(args, &c); err != nil {
		return Parsed{Outcome: OutcomeMalformed, Err: fmt.Errorf("%w: %w", ErrMalformedContract, err)}
	}
	return Parsed{Outcome: OutcomeParsed, Contract: &c, StringEncoded: stringEncoded}
}

// FunctionSpec is the contract advertised to the model.
func FunctionSpec() ai.FunctionSpec {
	str := func(desc string) *ai.Schema { return &ai.Schema{Type: ai.TypeString, Description: desc} }
	nullable := func(desc string) *ai.Schema {
		return &ai.Schema{Type: ai.TypeString, Description: desc, Nullable: true}
	}
	tags := &ai.Schema{
		Type:        ai.TypeArray,
		Description: "Short tags written in the user's language.",
		Items:       &ai.Schema{Type: ai.TypeString},
	}
	priority := &ai.Schema{Type: ai.TypeString, Enum: []string{"urgent", "high", "medium", "low"}}

	task := &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"title":           str("Short imperative title in the user's language."),
			"description":     nullable("Optional detail."),
			"priority":        priority,
			"due_date":        nullable("Absolute date YYYY-MM-DD computed from the current date, or null."),
			"due_time":        nullable("24-hour time HH:MM when a time of day was mentioned, or null."),
			"time_expression": nullable("The time phrase exactly as spoken, e.g. \"tomorrow at 3pm\"."),
			"category":        nullable("Category in the user's language."),
			"tags":            tags,
		},
		Required: []string{"title", "priority", "tags"},
	}
	reminder := &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"title":              str("Short title in the user's language."),
			"description":        nullable("Optional detail."),
			"reminder_time":      nullable("Absolute local date-time YYYY-MM-DDTHH:MM computed from the current date and time."),
			"time_expression":    nullable("The time phrase exactly as spoken, e.g. \"in 30 minutes\"."),
			"is_recurring":       {Type: ai.TypeBoolean},
			"recurrence_pattern": nullable("e.g. daily, weekly on monday."),
			"tags":               tags,
			"priority":           priority,
			"type":               {Type: ai.TypeString, Enum: []string{"task", "todo", "reminder"}},
		},
		Required: []string{"title", "reminder_time", "is_recurring", "tags", "priority", "type"},
	}
	healthNote := &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"content":  str("The observation in the user's language."),
			"category": str("e.g. symptom, medication, sleep, skincare."),
			"tags":     tags,
		},
		Required: []string{"content", "category", "tags"},
	}
	generalNote := &ai.Schema{
		Type:       ai.TypeObject,
		Properties: map[string]*ai.Schema{"content": str("The note in the user's language.")},
		Required:   []string{"content"},
	}
	prediction := &ai.Schema{
		Type: ai.TypeObject,
		Properties: map[string]*ai.Schema{
			"content_type":    str("e.g. social_post, email, article, checklist."),
			"description":     str("What should be drafted."),
			"confidence":      {Type: ai.TypeNumber, Description: "0 to 1. Use 0.8 or more only when the user explicitly asked for the content."},
			"suggested_title": nullable("Title for the draft."),
			"target_platform": nullable("e.g. instagram, linkedin."),
			"priority":        {Type: ai.TypeString, Enum: []string{"high", "medium", "low"}},
		},
		Required: []string{"content_type", "description", "confidence", "priority"},
	}

	return ai.FunctionSpec{
		Name:        FunctionName,
		Description: "Record every item found in the user's voice note together with a sectioned summary.",
		Parameters: &ai.Schema{
			Type: ai.TypeObject,
			Properties: map[string]*ai.Schema{
				"tasks":               {Type: ai.TypeArray, Items: task},
				"reminders":           {Type: ai.TypeArray, Items: reminder},
				"health_notes":        {Type: ai.TypeArray, Items: healthNote},
				"general_notes":       {Type: ai.TypeArray, Items: generalNote},
				"content_predictions": {Type: ai.TypeArray, Items: prediction},
				"summary":             str("Sectioned summary in the user's language without greetings or closing remarks."),
			},
			Required: []string{"tasks", "reminders", "health_notes", "general_notes", "content_predictions", "summary"},
		},
	}
}
