// Package workers runs the detached work that follows a voice note:
// pattern learning and content drafting, in process or through the job queue.
package workers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/content"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/queue"
)

// Scheduler hands post-persistence work to the background. Implementations
// return once the work is accepted, never after it runs.
type Scheduler interface {
	LearnPatterns(ctx context.Context, userID uuid.UUID, sourceRecordingID *string, events []patterns.ItemEvent) error
	GenerateContent(ctx context.Context, userID uuid.UUID, sourceRecordingID *string, items []*models.GeneratedContent) error
}

// PatternObserver is satisfied by *patterns.Learner.
type PatternObserver interface {
	Observe(ctx context.Context, e patterns.ItemEvent) error
}

// ContentRunner is satisfied by *content.Trigger.
type ContentRunner interface {
	Run(ctx context.Context, items []*models.GeneratedContent) content.Report
}

// Handlers executes background work. Both schedulers end up here.
type Handlers struct {
	observer PatternObserver
	runner   ContentRunner
	logger   *zap.Logger
}

// NewHandlers returns Handlers.
func NewHandlers(observer PatternObserver, runner ContentRunner, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{observer: observer, runner: runner, logger: logger}
}

// LearnPatterns observes each event. A failing event does not stop the rest.
func (h *Handlers) LearnPatterns(ctx context.Context, events []patterns.ItemEvent) error {
	var failed int
	var firstErr error
	for _, e := range events {
		if err := h.observer.Observe(ctx, e); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to learn from %d of %d events: %w", failed, len(events), firstErr)
	}
	return nil
}

// GenerateContent drafts items and reports per-item outcomes.
func (h *Handlers) GenerateContent(ctx context.Context, items []*models.GeneratedContent) content.Report {
	return h.runner.Run(ctx, items)
}

// PoolScheduler runs background work on an in-process Pool.
type PoolScheduler struct {
	pool     *Pool
	handlers *Handlers
}

// NewPoolScheduler returns a PoolScheduler.
func NewPoolScheduler(pool *Pool, handlers *Handlers) *PoolScheduler {
	return &PoolScheduler{pool: pool, handlers: handlers}
}

// LearnPatterns implements Scheduler.
func (s *PoolScheduler) LearnPatterns(ctx context.Context, userID uuid.UUID, _ *string, events []patterns.ItemEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.pool.Submit(ctx, "learn_patterns:"+userID.String(), func(ctx context.Context) error {
		return s.handlers.LearnPatterns(ctx, events)
	})
}

// GenerateContent implements Scheduler.
func (s *PoolScheduler) GenerateContent(ctx context.Context, userID uuid.UUID, _ *string, items []*models.GeneratedContent) error {
	if len(items) == 0 {
		return nil
	}
	return s.pool.Submit(ctx, "generate_content:"+userID.String(), func(ctx context.Context) error {
		return s.handlers.GenerateContent(ctx, items).Err
	})
}

// QueueScheduler publishes background work as jobs for cmd/worker.
type QueueScheduler struct {
	jobQueue queue.JobQueue
}

// NewQueueScheduler returns a QueueScheduler.
func NewQueueScheduler(jobQueue queue.JobQueue) *QueueScheduler {
	return &QueueScheduler{jobQueue: jobQueue}
}

// LearnPatterns implements Scheduler.
func (s *QueueScheduler) LearnPatterns(ctx context.Context, userID uuid.UUID, sourceRecordingID *string, events []patterns.ItemEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.enqueue(ctx, queue.JobTypeLearnPatterns, userID, sourceRecordingID, events)
}

// GenerateContent implements Scheduler.
func (s *QueueScheduler) GenerateContent(ctx context.Context, userID uuid.UUID, sourceRecordingID *string, items []*models.GeneratedContent) error {
	if len(items) == 0 {
		return nil
	}
	return s.enqueue(ctx, queue.JobTypeGenerateContent, userID, sourceRecordingID, items)
}

func (s *QueueScheduler) enqueue(ctx context.Context, jobType queue.JobType, userID uuid.UUID, sourceRecordingID *string, payload any) error {
	job, err := queue.NewJob(jobType, userID, payload)
	if err != nil {
		return err
	}
	job.SourceRecordingID = sourceRecordingID
	if err := s.jobQueue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return nil
}

var (
	_ Scheduler       = (*PoolScheduler)(nil)
	_ Scheduler       = (*QueueScheduler)(nil)
	_ PatternObserver = (*patterns.Learner)(nil)
	_ ContentRunner   = (*content.Trigger)(nil)
)
