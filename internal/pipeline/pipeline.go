package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/content"
	"github.com/benvon/smart-voice/internal/contextdoc"
	"github.com/benvon/smart-voice/internal/extraction"
	"github.com/benvon/smart-voice/internal/language"
	logpkg "github.com/benvon/smart-voice/internal/logger"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/normalizer"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/services/ai"
	"github.com/benvon/smart-voice/internal/timeresolve"
	"github.com/benvon/smart-voice/internal/transcription"
	"github.com/benvon/smart-voice/internal/validation"
	"github.com/benvon/smart-voice/internal/workers"
)

const tracerName = "github.com/benvon/smart-voice/internal/pipeline"

// AudioLoader is satisfied by *transcription.Loader.
type AudioLoader interface {
	Load(ctx context.Context, audioURL, audioBase64, mimeType string) (transcription.Audio, error)
}

// TextNormalizer is satisfied by *normalizer.Normalizer.
type TextNormalizer interface {
	Normalize(ctx context.Context, raw, lang string) normalizer.Result
}

// ContextRewriter is satisfied by *contextdoc.Assembler.
type ContextRewriter interface {
	Rewrite(ctx context.Context, userID uuid.UUID, event *contextdoc.Event, persist bool) (*contextdoc.Assembly, error)
}

// Extractor is satisfied by *extraction.Engine.
type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) *extraction.Output
}

// TranscriptStore stores the cleaned transcript of a run.
type TranscriptStore interface {
	CreateTranscript(ctx context.Context, t *models.VoiceTranscript) error
}

// ItemStore stores extracted items one at a time.
type ItemStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	CreateReminder(ctx context.Context, r *models.Reminder) error
	CreateHealthNote(ctx context.Context, n *models.HealthNote) error
}

// Deps are the collaborators of a Pipeline. Every field is required.
type Deps struct {
	Loader      AudioLoader
	Transcriber transcription.Transcriber
	Normalizer  TextNormalizer
	Context     ContextRewriter
	Extractor   Extractor
	Transcripts TranscriptStore
	Items       ItemStore
	Scheduler   workers.Scheduler
}

// Pipeline runs voice notes through transcription, normalization, context
// assembly, extraction and persistence, then hands learning and content
// drafting to the scheduler.
type Pipeline struct {
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New returns a Pipeline.
func New(deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// Process runs one voice note. The returned Result is never nil; the error
// is non-nil exactly when Result.Success is false.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	runID := ulid.MustNew(ulid.Timestamp(p.now()), rand.Reader).String()
	res := &Result{RunID: runID}

	recordingID := ""
	if req.SourceRecordingID != nil {
		recordingID = *req.SourceRecordingID
	}
	ctx = ai.WithLogFields(ctx, req.UserID.String(), recordingID, runID)
	log := p.logger.With(
		zap.String("run_id", runID),
		zap.String("user_id", req.UserID.String()),
		zap.String("source_recording_id", recordingID),
		zap.Bool("dry_run", req.SkipSaveItems),
	)

	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Bool("dry_run", req.SkipSaveItems),
	))
	defer span.End()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Success = false
		res.Error = err.Error()
		log.Warn("pipeline_failed", zap.String("error", logpkg.SanitizeError(err)))
		return res, err
	}

	if err := validateRequest(req); err != nil {
		return fail(err)
	}
	started := p.now()

	// Transcription
	transcript, err := p.transcribe(ctx, req)
	if err != nil {
		return fail(err)
	}
	lang := language.Resolve(transcript.Language)

	// Normalization never fails.
	norm := p.normalize(ctx, transcript.Text, lang)
	res.Transcription = norm.Text
	log.Debug("transcript_ready",
		zap.String("language", lang),
		zap.Bool("normalized", norm.Normalized),
		zap.String("preview", logpkg.Preview(norm.Text)),
	)

	// Context assembly happens before extraction reads it.
	eventAt := p.now()
	asm := p.assemble(ctx, log, req, norm.Text, eventAt)
	// The configured profile language wins over detection.
	lang = language.Resolve(asm.Language(), transcript.Language)
	res.Language = lang
	anchor := timeresolve.NewAnchor(eventAt, asm.Location())

	docContent := ""
	if asm != nil && asm.Document != nil {
		docContent = asm.Document.Content
	}

	// Extraction: single attempt, degrades instead of failing.
	out := p.extract(ctx, extraction.Input{
		UserID:            req.UserID,
		SourceRecordingID: req.SourceRecordingID,
		Transcript:        norm.Text,
		Language:          lang,
		ContextDocument:   docContent,
		Anchor:            anchor,
	})
	if out.Degraded {
		log.Warn("extraction_degraded_to_summary",
			zap.String("reason", out.DegradedReason),
			zap.Error(out.Err),
		)
	}

	items := &ExtractedItems{
		Tasks:          nonNilSlice(out.Tasks),
		Reminders:      nonNilSlice(out.Reminders),
		HealthNotes:    nonNilSlice(out.HealthNotes),
		GeneralNotes:   nonNilSlice(out.GeneralNotes),
		Summary:        out.Summary,
		Degraded:       out.Degraded,
		DegradedReason: out.DegradedReason,
	}
	res.ExtractedItems = items

	if req.SkipSaveItems {
		res.GeneratedContent = previewContent(content.Select(out.ContentPredictions))
		res.Success = true
		log.Info("pipeline_completed",
			zap.Int("tasks", len(items.Tasks)),
			zap.Int("reminders", len(items.Reminders)),
			zap.Int("health_notes", len(items.HealthNotes)),
			zap.Duration("duration", p.now().Sub(started)),
		)
		return res, nil
	}

	p.saveTranscript(ctx, log, req, transcript, norm.Text, lang, eventAt)

	// Persistence: each item is isolated.
	stats := p.persist(ctx, log, req, items)
	if stats.attempted > 0 && stats.persisted == 0 {
		return fail(fmt.Errorf("%w: %d items", ErrAllPersistenceFailed, stats.attempted))
	}

	// Detached work never affects the result.
	p.scheduleLearning(ctx, log, req, items, asm.Location().String())
	res.GeneratedContent = p.scheduleContent(ctx, log, req, lang, out.ContentPredictions)

	res.Success = true
	span.SetAttributes(
		attribute.Int("items.attempted", stats.attempted),
		attribute.Int("items.persisted", stats.persisted),
	)
	log.Info("pipeline_completed",
		zap.Int("tasks", len(items.Tasks)),
		zap.Int("reminders", len(items.Reminders)),
		zap.Int("health_notes", len(items.HealthNotes)),
		zap.Int("items_failed", stats.attempted-stats.persisted),
		zap.Int("content_scheduled", len(res.GeneratedContent)),
		zap.Duration("duration", p.now().Sub(started)),
	)
	return res, nil
}

func validateRequest(req Request) error {
	if err := validation.Validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.AudioURL == "" && strings.TrimSpace(req.AudioBase64) == "" {
		return fmt.Errorf("%w: audioUrl or audioBase64 is required", ErrInvalidRequest)
	}
	return nil
}

func (p *Pipeline) transcribe(ctx context.Context, req Request) (*transcription.Transcript, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.transcribe")
	defer span.End()

	audio, err := p.deps.Loader.Load(ctx, req.AudioURL, req.AudioBase64, req.MimeType)
	if errors.Is(err, transcription.ErrAudioURLNotAllowed) {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	t, err := p.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	if t == nil || strings.TrimSpace(t.Text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrTranscription, transcription.ErrEmptyTranscript)
	}
	span.SetAttributes(attribute.String("language", t.Language))
	return t, nil
}

func (p *Pipeline) normalize(ctx context.Context, raw, lang string) normalizer.Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	r := p.deps.Normalizer.Normalize(ctx, raw, lang)
	span.SetAttributes(attribute.Bool("normalized", r.Normalized))
	if r.FallbackReason != "" {
		span.SetAttributes(attribute.String("fallback_reason", r.FallbackReason))
	}
	return r
}

// assemble returns nil only if the document could not be built at all, in
// which case extraction runs without personalization.
func (p *Pipeline) assemble(ctx context.Context, log *zap.Logger, req Request, cleaned string, at time.Time) *contextdoc.Assembly {
	ctx, span := p.tracer.Start(ctx, "pipeline.assemble_context")
	defer span.End()

	asm, err := p.deps.Context.Rewrite(ctx, req.UserID, &contextdoc.Event{
		Transcript:        cleaned,
		SourceRecordingID: req.SourceRecordingID,
		At:                at,
	}, !req.SkipSaveItems)
	if err != nil {
		span.RecordError(err)
		log.Warn("context_assembly_degraded", zap.Error(err))
	}
	return asm
}

func (p *Pipeline) extract(ctx context.Context, in extraction.Input) *extraction.Output {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	out := p.deps.Extractor.Extract(ctx, in)
	span.SetAttributes(
		attribute.Bool("degraded", out.Degraded),
		attribute.Int("tasks", len(out.Tasks)),
		attribute.Int("reminders", len(out.Reminders)),
		attribute.Int("health_notes", len(out.HealthNotes)),
	)
	return out
}

func (p *Pipeline) saveTranscript(ctx context.Context, log *zap.Logger, req Request, t *transcription.Transcript, cleaned, lang string, at time.Time) {
	err := p.deps.Transcripts.CreateTranscript(ctx, &models.VoiceTranscript{
		UserID:            req.UserID,
		RawText:           t.Text,
		CleanedText:       cleaned,
		Language:          lang,
		DurationSeconds:   t.DurationSeconds,
		SourceRecordingID: req.SourceRecordingID,
		CreatedAt:         at,
	})
	if err != nil {
		log.Warn("transcript_persist_failed", zap.Error(err))
	}
}

// persist stores every item and keeps only those that were stored.
func (p *Pipeline) persist(ctx context.Context, log *zap.Logger, req Request, items *ExtractedItems) persistStats {
	ctx, span := p.tracer.Start(ctx, "pipeline.persist")
	defer span.End()

	var stats persistStats

	tasks := items.Tasks[:0]
	for _, t := range items.Tasks {
		stats.attempted++
		t.UserID, t.SourceRecordingID = req.UserID, req.SourceRecordingID
		if err := p.deps.Items.CreateTask(ctx, &t); err != nil {
			log.Warn("item_persist_failed", zap.String("kind", "task"), zap.Error(err))
			continue
		}
		stats.persisted++
		tasks = append(tasks, t)
	}
	items.Tasks = tasks

	reminders := items.Reminders[:0]
	for _, r := range items.Reminders {
		stats.attempted++
		r.UserID, r.SourceRecordingID = req.UserID, req.SourceRecordingID
		if err := p.deps.Items.CreateReminder(ctx, &r); err != nil {
			log.Warn("item_persist_failed", zap.String("kind", "reminder"), zap.Error(err))
			continue
		}
		stats.persisted++
		reminders = append(reminders, r)
	}
	items.Reminders = reminders

	notes := items.HealthNotes[:0]
	for _, n := range items.HealthNotes {
		stats.attempted++
		n.UserID, n.SourceRecordingID = req.UserID, req.SourceRecordingID
		if err := p.deps.Items.CreateHealthNote(ctx, &n); err != nil {
			log.Warn("item_persist_failed", zap.String("kind", "health_note"), zap.Error(err))
			continue
		}
		stats.persisted++
		notes = append(notes, n)
	}
	items.HealthNotes = notes

	span.SetAttributes(
		attribute.Int("attempted", stats.attempted),
		attribute.Int("persisted", stats.persisted),
	)
	return stats
}

func (p *Pipeline) scheduleLearning(ctx context.Context, log *zap.Logger, req Request, items *ExtractedItems, timezone string) {
	at := p.now()
	events := make([]patterns.ItemEvent, 0, len(items.Tasks)+len(items.Reminders))
	for i := range items.Tasks {
		t := items.Tasks[i]
		events = append(events, patterns.ItemEvent{Kind: patterns.EventCreated, UserID: req.UserID, Task: &t, At: at, Timezone: timezone})
	}
	for i := range items.Reminders {
		r := items.Reminders[i]
		events = append(events, patterns.ItemEvent{Kind: patterns.EventCreated, UserID: req.UserID, Reminder: &r, At: at, Timezone: timezone})
	}
	if err := p.deps.Scheduler.LearnPatterns(ctx, req.UserID, req.SourceRecordingID, events); err != nil {
		log.Warn("pattern_learning_not_scheduled", zap.Int("events", len(events)), zap.Error(err))
	}
}

func (p *Pipeline) scheduleContent(ctx context.Context, log *zap.Logger, req Request, lang string, preds []models.ContentPrediction) []GeneratedContentRef {
	planned := content.Plan(req.UserID, req.SourceRecordingID, lang, preds, p.now())
	if len(planned) == 0 {
		return nil
	}
	// The scheduler may start drafting right away and mutates the planned
	// items; refs are taken before handing them over.
	refs := make([]GeneratedContentRef, 0, len(planned))
	for _, item := range planned {
		id := item.ID
		refs = append(refs, GeneratedContentRef{
			DocumentID:  &id,
			Title:       item.Title,
			ContentType: item.ContentType,
			Status:      item.Status,
		})
	}
	if err := p.deps.Scheduler.GenerateContent(ctx, req.UserID, req.SourceRecordingID, planned); err != nil {
		log.Warn("content_generation_not_scheduled", zap.Int("items", len(planned)), zap.Error(err))
		for i := range refs {
			refs[i].Status = models.ContentStatusFailed
		}
	}
	return refs
}

func previewContent(preds []models.ContentPrediction) []GeneratedContentRef {
	if len(preds) == 0 {
		return nil
	}
	refs := make([]GeneratedContentRef, 0, len(preds))
	for _, pred := range preds {
		refs = append(refs, GeneratedContentRef{
			Title:       pred.Title(),
			ContentType: pred.ContentType,
			PreviewText: pred.Description,
			Status:      models.ContentStatusPreview,
		})
	}
	return refs
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// IsUserFailure reports whether err is one of the failures that make
// Result.Success false.
func IsUserFailure(err error) bool {
	return errors.Is(err, ErrTranscription) || errors.Is(err, ErrAllPersistenceFailed) || errors.Is(err, ErrInvalidRequest)
}
