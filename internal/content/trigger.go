// Package content turns extraction-time content predictions into drafted
// documents and notifies the user about them.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benvon/smart-voice/internal/models"
)

const (
	// MinConfidence is the lowest prediction confidence that gets drafted.
	MinConfidence = 0.5
	// ExplicitConfidence and above is recorded as an explicit request.
	ExplicitConfidence = 0.8
	// MaxDrafts caps drafts per voice note.
	MaxDrafts = 3

	defaultConcurrency = 3
)

// Repository persists drafted content.
type Repository interface {
	CreateGeneratedContent(ctx context.Context, c *models.GeneratedContent) error
}

// Notifier enqueues a notification for the dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// GenerationTypeFor maps a prediction confidence to its generation type.
func GenerationTypeFor(confidence float64) models.GenerationType {
	if confidence >= ExplicitConfidence {
		return models.GenerationTypeExplicit
	}
	return models.GenerationTypeProactive
}

// Select keeps predictions at or above MinConfidence, strongest first,
// capped at MaxDrafts. Ties keep extraction order.
func Select(preds []models.ContentPrediction) []models.ContentPrediction {
	var kept []models.ContentPrediction
	for _, p := range preds {
		if p.Confidence >= MinConfidence {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
	if len(kept) > MaxDrafts {
		kept = kept[:MaxDrafts]
	}
	return kept
}

// Plan selects predictions and returns one pending record per draft, with
// ids assigned so callers can reference drafts before they exist.
func Plan(userID uuid.UUID, sourceRecordingID *string, lang string, preds []models.ContentPrediction, now time.Time) []*models.GeneratedContent {
	selected := Select(preds)
	out := make([]*models.GeneratedContent, 0, len(selected))
	for _, p := range selected {
		out = append(out, &models.GeneratedContent{
			ID:                uuid.New(),
			UserID:            userID,
			SourceRecordingID: sourceRecordingID,
			Title:             p.Title(),
			ContentType:       p.ContentType,
			Brief:             p.Description,
			Language:          lang,
			TargetPlatform:    p.TargetPlatform,
			GenerationType:    GenerationTypeFor(p.Confidence),
			Confidence:        p.Confidence,
			Status:            models.ContentStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	return out
}

// Report is the outcome of a Run. Err joins every per-item failure.
type Report struct {
	Drafted []*models.GeneratedContent
	Failed  []*models.GeneratedContent
	Err     error
}

// Trigger drafts planned content.
type Trigger struct {
	drafter     Drafter
	repo        Repository
	notifier    Notifier
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewTrigger returns a Trigger. A nil notifier skips notifications.
func NewTrigger(drafter Drafter, repo Repository, notifier Notifier, concurrency int, logger *zap.Logger) *Trigger {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		drafter:     drafter,
		repo:        repo,
		notifier:    notifier,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Run drafts every item independently: one failing never cancels the others.
// Each successful draft is persisted and then announced with a notification.
func (t *Trigger) Run(ctx context.Context, items []*models.GeneratedContent) Report {
	var (
		mu     sync.Mutex
		report Report
		errs   []error
	)

	// Workers always return nil so the group never cancels siblings.
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for _, item := range items {
		g.Go(func() error {
			err := t.draftOne(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, item)
				errs = append(errs, fmt.Errorf("content %s: %w", item.ID, err))
				return nil
			}
			report.Drafted = append(report.Drafted, item)
			return nil
		})
	}
	_ = g.Wait()

	report.Err = errors.Join(errs...)
	t.logger.Info("content_generation_completed",
		zap.Int("drafted", len(report.Drafted)),
		zap.Int("failed", len(report.Failed)),
	)
	return report
}

func (t *Trigger) draftOne(ctx context.Context, item *models.GeneratedContent) error {
	platform := ""
	if item.TargetPlatform != nil {
		platform = *item.TargetPlatform
	}
	body, err := t.drafter.Draft(ctx, DraftRequest{
		Title:          item.Title,
		ContentType:    item.ContentType,
		Description:    item.Brief,
		TargetPlatform: platform,
		Language:       item.Language,
	})
	if err != nil {
		item.Status = models.ContentStatusFailed
		t.logger.Warn("content_draft_failed",
			zap.String("content_id", item.ID.String()),
			zap.String("user_id", item.UserID.String()),
			zap.Error(err),
		)
		return err
	}

	item.Body = body
	item.PreviewText = PreviewText(body)
	item.Status = models.ContentStatusDrafted
	item.UpdatedAt = t.now()

	if err := t.repo.CreateGeneratedContent(ctx, item); err != nil {
		item.Status = models.ContentStatusFailed
		t.logger.Error("content_persist_failed",
			zap.String("content_id", item.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save generated content: %w", err)
	}

	if t.notifier == nil {
		return nil
	}
	id := item.ID
	n := &models.Notification{
		ID:          uuid.New(),
		UserID:      item.UserID,
		Kind:        models.NotificationKindContentDrafted,
		Title:       item.Title,
		Body:        item.PreviewText,
		ReferenceID: &id,
		CreatedAt:   t.now(),
	}
	if err := t.notifier.Notify(ctx, n); err != nil {
		// The draft exists; a lost notification is not a draft failure.
		t.logger.Warn("content_notification_failed",
			zap.String("content_id", item.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}
