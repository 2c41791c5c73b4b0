// Package contextdoc assembles and stores the per-user context document
// that personalizes extraction.
package contextdoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/locks"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/timeresolve"
)

const (
	maxTodayTopics   = 5
	maxWeekTopics    = 5
	maxTopicRunes    = 60
	maxContentTitles = 5
	maxPatterns      = 8
	historyDays      = 30
	historyLimit     = 200

	lockTTL     = 15 * time.Second
	lockWait    = 5 * time.Second
	lockKeyBase = "contextdoc:"
)

// ProfileReader loads the onboarding profile. A missing profile is
// reported as sql.ErrNoRows.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error)
}

// TranscriptReader lists transcripts created at or after since, newest first.
type TranscriptReader interface {
	ListTranscriptsSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.VoiceTranscript, error)
}

// ContentTitleReader lists titles of recently generated content, newest first.
type ContentTitleReader interface {
	RecentContentTitles(ctx context.Context, userID uuid.UUID, limit int) ([]string, error)
}

// PatternSummarizer describes the user's strongest learned patterns.
type PatternSummarizer interface {
	Summaries(ctx context.Context, userID uuid.UUID, limit int) ([]string, error)
}

// Store persists exactly one document per user. Get reports a missing
// document as sql.ErrNoRows.
type Store interface {
	GetContextDocument(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error)
	UpsertContextDocument(ctx context.Context, doc *models.ContextDocument) error
	DeleteContextDocument(ctx context.Context, userID uuid.UUID) error
}

// Sources groups the read-only inputs of a document. Nil members render
// as placeholders.
type Sources struct {
	Profiles    ProfileReader
	Transcripts TranscriptReader
	Content     ContentTitleReader
	Patterns    PatternSummarizer
}

// Event is the voice event that triggered a rewrite. It is folded into the
// topic history even though its transcript may not be stored yet.
type Event struct {
	Transcript        string
	SourceRecordingID *string
	At                time.Time
}

// Assembly is the outcome of a rewrite.
type Assembly struct {
	Document *models.ContextDocument
	// Profile is nil when the user has no profile yet.
	Profile *models.UserContextProfile
}

// Location returns the user's timezone, UTC when unknown.
func (a *Assembly) Location() *time.Location {
	if a == nil {
		return time.UTC
	}
	return a.Profile.Location()
}

// Language returns the user's configured language code, "" when unset.
func (a *Assembly) Language() string {
	if a == nil || a.Profile == nil {
		return ""
	}
	return a.Profile.Language
}

// Assembler owns the context document lifecycle: Init at onboarding,
// Rewrite on each voice event and Teardown on account deletion.
type Assembler struct {
	src    Sources
	store  Store
	locker locks.Locker
	logger *zap.Logger
	now    func() time.Time
}

// New returns an Assembler. A nil locker disables cross-run serialization.
func New(src Sources, store Store, locker locks.Locker, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		src:    src,
		store:  store,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// Init writes the first document for a freshly onboarded user.
func (a *Assembler) Init(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
	asm, err := a.Rewrite(ctx, userID, nil, true)
	if err != nil {
		return nil, err
	}
	return asm.Document, nil
}

// Current returns the stored document.
func (a *Assembler) Current(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
	doc, err := a.store.GetContextDocument(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get context document: %w", err)
	}
	return doc, nil
}

// Teardown removes the user's document. Removing a missing document is not an error.
func (a *Assembler) Teardown(ctx context.Context, userID uuid.UUID) error {
	if err := a.store.DeleteContextDocument(ctx, userID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to delete context document: %w", err)
	}
	a.logger.Info("context_document_deleted", zap.String("user_id", userID.String()))
	return nil
}

// Rewrite assembles the document with event folded in and, when persist is
// set, overwrites the stored copy. The assembled document is returned even
// when storing it fails so the caller can still hand it to extraction.
// Rewrites for one user are serialized through the locker.
func (a *Assembler) Rewrite(ctx context.Context, userID uuid.UUID, event *Event, persist bool) (*Assembly, error) {
	if persist && a.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, lockWait)
		lock, err := a.locker.Acquire(lockCtx, lockKeyBase+userID.String(), lockTTL)
		cancel()
		if err != nil {
			// Proceed unserialized; last write wins.
			a.logger.Warn("context_lock_unavailable",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("context_lock_release_failed", zap.Error(err))
				}
			}()
		}
	}

	asm, err := a.assemble(ctx, userID, event)
	if err != nil {
		return nil, err
	}
	if !persist {
		return asm, nil
	}

	if err := a.store.UpsertContextDocument(ctx, asm.Document); err != nil {
		a.logger.Error("context_document_write_failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return asm, fmt.Errorf("failed to store context document: %w", err)
	}
	a.logger.Debug("context_document_rewritten",
		zap.String("user_id", userID.String()),
		zap.Int("length", len(asm.Document.Content)),
	)
	return asm, nil
}

func (a *Assembler) assemble(ctx context.Context, userID uuid.UUID, event *Event) (*Assembly, error) {
	now := a.now()
	if event != nil && !event.At.IsZero() {
		now = event.At
	}

	profile := a.loadProfile(ctx, userID)
	loc := profile.Location()
	anchor := timeresolve.NewAnchor(now, loc)

	data := documentData{
		PreferredName:     placeholderUnset,
		Language:          language.Name(""),
		Timezone:          loc.String(),
		Profession:        placeholderUnset,
		CriticalArtifacts: placeholderNone,
		SocialPlatforms:   placeholderNone,
		NewsFocus:         placeholderNone,
		HealthInterests:   placeholderNone,
		SkincareSummary:   placeholderUnset,
		HealthSummary:     placeholderUnset,
	}
	if profile != nil {
		data.PreferredName = orUnset(profile.PreferredName)
		data.Language = language.Name(profile.Language)
		data.Profession = orUnset(profile.Profession)
		data.CriticalArtifacts = joinOrNone(profile.CriticalArtifacts)
		data.SocialPlatforms = joinOrNone(profile.SocialPlatforms)
		data.NewsFocus = joinOrNone(profile.NewsFocus)
		data.HealthInterests = joinOrNone(profile.HealthInterests)
		data.SkincareSummary = orUnset(profile.SkincareSummary)
		data.HealthSummary = orUnset(profile.HealthSummary)
	}

	data.TodayTopics, data.WeekTopics, data.MonthCount = a.topics(ctx, userID, anchor, event)
	data.ContentTitles = a.contentTitles(ctx, userID)
	data.Patterns = a.patterns(ctx, userID)

	content, err := render(data)
	if err != nil {
		return nil, fmt.Errorf("failed to render context document: %w", err)
	}

	doc := &models.ContextDocument{
		UserID:    userID,
		Content:   content,
		UpdatedAt: now,
	}
	if event != nil {
		doc.SourceRecordingID = event.SourceRecordingID
	}
	return &Assembly{Document: doc, Profile: profile}, nil
}

func (a *Assembler) loadProfile(ctx context.Context, userID uuid.UUID) *models.UserContextProfile {
	if a.src.Profiles == nil {
		return nil
	}
	p, err := a.src.Profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			a.logger.Warn("context_profile_unavailable", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return nil
	}
	return p
}

// topics buckets transcript history by the user's local calendar. The
// triggering event counts as the newest transcript of today.
func (a *Assembler) topics(ctx context.Context, userID uuid.UUID, anchor timeresolve.Anchor, event *Event) (today, week []string, month int) {
	var history []*models.VoiceTranscript
	if a.src.Transcripts != nil {
		var err error
		history, err = a.src.Transcripts.ListTranscriptsSince(ctx, userID, anchor.AddDays(-historyDays+1), historyLimit)
		if err != nil {
			a.logger.Warn("context_history_unavailable", zap.String("user_id", userID.String()), zap.Error(err))
			history = nil
		}
	}

	startToday := anchor.Today()
	startWeek := anchor.AddDays(-6)

	if event != nil {
		if topic := LeadingClause(event.Transcript); topic != "" {
			today = append(today, topic)
		}
		month++
	}
	for _, t := range history {
		if event != nil && sameRecording(t.SourceRecordingID, event.SourceRecordingID) {
			continue
		}
		month++
		text := t.CleanedText
		if text == "" {
			text = t.RawText
		}
		topic := LeadingClause(text)
		if topic == "" {
			continue
		}
		created := t.CreatedAt.In(anchor.Location())
		switch {
		case !created.Before(startToday):
			if len(today) < maxTodayTopics {
				today = append(today, topic)
			}
		case !created.Before(startWeek):
			if len(week) < maxWeekTopics {
				week = append(week, topic)
			}
		}
	}
	if len(today) > maxTodayTopics {
		today = today[:maxTodayTopics]
	}
	return today, week, month
}

func sameRecording(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (a *Assembler) contentTitles(ctx context.Context, userID uuid.UUID) []string {
	if a.src.Content == nil {
		return nil
	}
	titles, err := a.src.Content.RecentContentTitles(ctx, userID, maxContentTitles)
	if err != nil {
		a.logger.Warn("context_content_unavailable", zap.String("user_id", userID.String()), zap.Error(err))
		return nil
	}
	return titles
}

func (a *Assembler) patterns(ctx context.Context, userID uuid.UUID) []string {
	if a.src.Patterns == nil {
		return nil
	}
	sums, err := a.src.Patterns.Summaries(ctx, userID, maxPatterns)
	if err != nil {
		a.logger.Warn("context_patterns_unavailable", zap.String("user_id", userID.String()), zap.Error(err))
		return nil
	}
	return sums
}

// LeadingClause returns the first clause of a transcript, capped in length.
func LeadingClause(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?;:,\n。！？；，"); i >= 0 {
		text = text[:i]
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > maxTopicRunes {
		r := []rune(text)
		text = strings.TrimSpace(string(r[:maxTopicRunes-1])) + "…"
	}
	return text
}
