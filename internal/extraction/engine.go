package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/services/ai"
	"github.com/benvon/smart-voice/internal/summary"
	"github.com/benvon/smart-voice/internal/timeresolve"
	"github.com/benvon/smart-voice/internal/validation"
)

// Degradation reasons reported in Output.DegradedReason.
const (
	DegradedNoContract        = "no_contract"
	DegradedMalformedContract = "malformed_contract"
	DegradedProviderError     = "provider_error"
)

// DefaultTimeout bounds the single extraction call.
const DefaultTimeout = 45 * time.Second

// Input is everything one extraction needs.
type Input struct {
	UserID            uuid.UUID
	SourceRecordingID *string
	Transcript        string
	Language          string
	ContextDocument   string
	Anchor            timeresolve.Anchor
}

// Output carries typed, time-resolved items. When Degraded is set the item
// lists are empty and Summary holds whatever text the model produced.
type Output struct {
	Tasks              []models.Task
	Reminders          []models.Reminder
	HealthNotes        []models.HealthNote
	GeneralNotes       []models.GeneralNote
	ContentPredictions []models.ContentPrediction
	Summary            string

	Degraded       bool
	DegradedReason string
	// Err is the cause of a degradation.
	Err error
	// RejectedReminders counts reminders dropped for lack of a resolvable time.
	RejectedReminders int
}

// Engine performs the extraction call. It never retries.
type Engine struct {
	caller  ai.FunctionCaller
	summary *summary.Processor
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine returns an Engine. A nil processor uses the embedded phrase
// registry; a zero timeout uses DefaultTimeout.
func NewEngine(caller ai.FunctionCaller, proc *summary.Processor, timeout time.Duration, logger *zap.Logger) *Engine {
	if proc == nil {
		proc = summary.NewProcessor(nil)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{caller: caller, summary: proc, timeout: timeout, logger: logger}
}

// Extract runs one function-constrained call and post-processes the result.
// Model failures degrade to an empty item set rather than an error.
func (e *Engine) Extract(ctx context.Context, in Input) *Output {
	lang := language.Normalize(in.Language)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.caller.CallFunction(callCtx, ai.FunctionRequest{
		Operation: "extract_voice_note_items",
		System:    systemPrompt(lang),
		Prompt:    userPrompt(in),
		Function:  FunctionSpec(),
	})
	if err != nil {
		e.logger.Warn("extraction_degraded",
			zap.String("reason", DegradedProviderError),
			zap.String("user_id", in.UserID.String()),
			zap.Error(err),
		)
		return &Output{
			Summary:        e.summary.Process(in.Transcript, lang),
			Degraded:       true,
			DegradedReason: DegradedProviderError,
			Err:            fmt.Errorf("failed to call extraction model: %w", err),
		}
	}

	parsed := ParseContract(resp)
	if parsed.Outcome != OutcomeParsed {
		raw := resp.Text
		if strings.TrimSpace(raw) == "" && parsed.Outcome == OutcomeMalformed {
			raw = string(resp.Arguments)
		}
		e.logger.Warn("extraction_degraded",
			zap.String("reason", parsed.Outcome.String()),
			zap.String("user_id", in.UserID.String()),
			zap.Error(parsed.Err),
		)
		return &Output{
			Summary:        e.summary.Process(raw, lang),
			Degraded:       true,
			DegradedReason: parsed.Outcome.String(),
			Err:            parsed.Err,
		}
	}
	if parsed.StringEncoded {
		e.logger.Debug("extraction_arguments_string_encoded", zap.String("user_id", in.UserID.String()))
	}

	out := e.build(parsed.Contract, in)
	out.Summary = e.summary.Process(parsed.Contract.Summary, lang)
	e.logger.Info("extraction_completed",
		zap.String("user_id", in.UserID.String()),
		zap.Int("tasks", len(out.Tasks)),
		zap.Int("reminders", len(out.Reminders)),
		zap.Int("health_notes", len(out.HealthNotes)),
		zap.Int("general_notes", len(out.GeneralNotes)),
		zap.Int("content_predictions", len(out.ContentPredictions)),
		zap.Int("rejected_reminders", out.RejectedReminders),
	)
	return out
}

// IsDegraded reports whether err came from a missing or malformed contract.
func IsDegraded(err error) bool {
	return errors.Is(err, ErrNoContract) || errors.Is(err, ErrMalformedContract)
}

func (e *Engine) build(c *Contract, in Input) *Output {
	out := &Output{}
	dropped := 0

	for _, ct := range c.Tasks {
		ct.Title = validation.SanitizeText(ct.Title)
		if err := validation.Validate.Struct(ct); err != nil {
			dropped++
			continue
		}
		dueDate, dueTime := resolveTaskTime(ct, in.Anchor)
		out.Tasks = append(out.Tasks, models.Task{
			UserID:            in.UserID,
			SourceRecordingID: in.SourceRecordingID,
			Title:             ct.Title,
			Description:       trimmed(ct.Description),
			Priority:          priorityOr(ct.Priority, models.PriorityMedium),
			DueDate:           dueDate,
			DueTime:           dueTime,
			Category:          trimmed(ct.Category),
			Tags:              validation.SanitizeTags(ct.Tags),
			Status:            models.TaskStatusPending,
		})
	}

	for _, cr := range c.Reminders {
		cr.Title = validation.SanitizeText(cr.Title)
		if err := validation.Validate.Struct(cr); err != nil {
			dropped++
			continue
		}
		at, ok := resolveReminderTime(cr, in.Anchor)
		if !ok {
			out.RejectedReminders++
			e.logger.Info("reminder_rejected_unresolved_time",
				zap.String("user_id", in.UserID.String()),
			)
			continue
		}
		rtype, ok := models.ParseReminderType(cr.Type)
		if !ok {
			rtype = models.ReminderTypeReminder
		}
		out.Reminders = append(out.Reminders, models.Reminder{
			UserID:            in.UserID,
			SourceRecordingID: in.SourceRecordingID,
			Title:             cr.Title,
			Description:       trimmed(cr.Description),
			ReminderTime:      at,
			IsRecurring:       cr.IsRecurring,
			RecurrencePattern: trimmed(cr.RecurrencePattern),
			Tags:              validation.SanitizeTags(cr.Tags),
			Priority:          priorityOr(cr.Priority, models.PriorityMedium),
			Type:              rtype,
		})
	}

	for _, ch := range c.HealthNotes {
		ch.Content = validation.SanitizeText(ch.Content)
		if err := validation.Validate.Struct(ch); err != nil {
			dropped++
			continue
		}
		category := strings.TrimSpace(ch.Category)
		if category == "" {
			category = "general"
		}
		out.HealthNotes = append(out.HealthNotes, models.HealthNote{
			UserID:            in.UserID,
			SourceRecordingID: in.SourceRecordingID,
			Content:           ch.Content,
			Category:          category,
			Tags:              validation.SanitizeTags(ch.Tags),
		})
	}

	for _, cg := range c.GeneralNotes {
		cg.Content = validation.SanitizeText(cg.Content)
		if err := validation.Validate.Struct(cg); err != nil {
			dropped++
			continue
		}
		out.GeneralNotes = append(out.GeneralNotes, models.GeneralNote{Content: cg.Content})
	}

	for _, cp := range c.ContentPredictions {
		cp.ContentType = strings.TrimSpace(cp.ContentType)
		cp.Description = validation.SanitizeText(cp.Description)
		if err := validation.Validate.Struct(cp); err != nil {
			dropped++
			continue
		}
		p := priorityOr(cp.Priority, models.PriorityMedium)
		if p == models.PriorityUrgent {
			p = models.PriorityHigh
		}
		out.ContentPredictions = append(out.ContentPredictions, models.ContentPrediction{
			ContentType:    cp.ContentType,
			Description:    cp.Description,
			Confidence:     clamp01(cp.Confidence),
			SuggestedTitle: trimmed(cp.SuggestedTitle),
			TargetPlatform: trimmed(cp.TargetPlatform),
			Priority:       p,
		})
	}

	if dropped > 0 {
		e.logger.Warn("extraction_items_invalid",
			zap.String("user_id", in.UserID.String()),
			zap.Int("dropped", dropped),
		)
	}
	return out
}

func priorityOr(s string, def models.Priority) models.Priority {
	if p, ok := models.ParsePriority(s); ok {
		return p
	}
	return def
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := validation.SanitizeText(*s)
	if v == "" {
		return nil
	}
	return &v
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
