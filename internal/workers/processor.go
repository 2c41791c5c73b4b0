package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/queue"
	"github.com/benvon/smart-voice/internal/services/ai"
)

// errNotReady marks a job delivered before its NotBefore.
var errNotReady = errors.New("job not ready")

// maxEarlyWait bounds how long an early delivery is held before it is
// republished, which paces redelivery when the delayed exchange is missing.
const maxEarlyWait = 5 * time.Second

// Processor consumes background jobs and dispatches them to Handlers.
type Processor struct {
	handlers *Handlers
	jobQueue queue.JobQueue // For re-enqueueing jobs with delays
	logger   *zap.Logger
	wait     func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a new processor
func NewProcessor(handlers *Handlers, jobQueue queue.JobQueue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{handlers: handlers, jobQueue: jobQueue, logger: logger, wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (p *Processor) Run(ctx context.Context, prefetch int) error {
	msgs, errs, err := p.jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("consumer stopped: %w", err)
			}
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := p.ProcessJob(ctx, msg); err != nil && !errors.Is(err, errNotReady) {
				p.logger.Warn("job_processing_failed",
					zap.String("job_id", msg.Job.ID.String()),
					zap.String("job_type", string(msg.Job.Type)),
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessJob processes a job based on its type. The message is always
// acked or nacked before returning.
func (p *Processor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if job.IsExpired() {
		p.logger.Info("job_expired", zap.String("job_id", job.ID.String()))
		return nackToDLQ(msg, fmt.Errorf("job %s expired", job.ID))
	}
	if !job.ShouldProcess() {
		// Delivered early because the delayed exchange is unavailable.
		if ready := p.holdEarly(ctx, msg, job); !ready {
			return errNotReady
		}
	}

	switch job.Type {
	case queue.JobTypeLearnPatterns:
		var events []patterns.ItemEvent
		if err := job.DecodePayload(&events); err != nil {
			return nackToDLQ(msg, err)
		}
		// Upserts are not idempotent, so a partial failure is logged, not retried.
		if err := p.handlers.LearnPatterns(ctx, events); err != nil {
			p.logger.Warn("pattern_learning_incomplete",
				zap.String("job_id", job.ID.String()),
				zap.String("user_id", job.UserID.String()),
				zap.Error(err),
			)
		}
		return ack(msg)

	case queue.JobTypeGenerateContent:
		var items []*models.GeneratedContent
		if err := job.DecodePayload(&items); err != nil {
			return nackToDLQ(msg, err)
		}
		report := p.handlers.GenerateContent(ctx, items)
		if len(report.Failed) == 0 {
			return ack(msg)
		}
		// Only the failed drafts are retried; drafted ones are already stored.
		for _, item := range report.Failed {
			item.Status = models.ContentStatusPending
		}
		payload, err := json.Marshal(report.Failed)
		if err != nil {
			return nackToDLQ(msg, fmt.Errorf("failed to marshal retry payload: %w", err))
		}
		return p.handleJobError(ctx, msg, job, report.Err, payload)

	default:
		return nackToDLQ(msg, fmt.Errorf("unknown job type: %s", job.Type))
	}
}

// holdEarly waits up to maxEarlyWait for job's NotBefore. A job that is
// still early is republished and the delivery acked; it reports whether
// the job may run now.
func (p *Processor) holdEarly(ctx context.Context, msg queue.MessageInterface, job *queue.Job) bool {
	var remaining time.Duration
	if job.NotBefore != nil {
		remaining = time.Until(*job.NotBefore)
	}
	if err := p.wait(ctx, min(remaining, maxEarlyWait)); err != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("job_requeue_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return false
	}
	if job.ShouldProcess() {
		return true
	}

	if err := p.jobQueue.Enqueue(ctx, job); err != nil {
		p.logger.Warn("job_defer_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("job_requeue_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return false
	}
	if ackErr := msg.Ack(); ackErr != nil {
		p.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
	}
	p.logger.Debug("job_deferred",
		zap.String("job_id", job.ID.String()),
		zap.Timep("not_before", job.NotBefore),
	)
	return false
}

// handleJobError re-enqueues job with a backoff matching the error: quota
// errors wait longest, rate limits honor Retry-After. Jobs out of retries
// go to the DLQ.
func (p *Processor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error, payload json.RawMessage) error {
	quota := ai.IsQuotaError(err)
	if !job.CanRetry() && !quota {
		p.logger.Error("job_retries_exhausted",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		return nackToDLQ(msg, fmt.Errorf("job failed (max retries): %w", err))
	}

	delay := ai.GetRetryDelay(err, job.RetryCount)
	next := job.Retry(time.Now().Add(delay), payload)

	if enqueueErr := p.jobQueue.Enqueue(ctx, next); enqueueErr != nil {
		p.logger.Error("job_reenqueue_failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(enqueueErr),
		)
		return nackToDLQ(msg, fmt.Errorf("failed to re-enqueue: %w", enqueueErr))
	}
	if ackErr := msg.Ack(); ackErr != nil {
		p.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
	}

	p.logger.Info("job_reenqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Bool("quota", quota),
		zap.Bool("rate_limited", ai.IsRateLimitError(err)),
		zap.Int("retry_count", next.RetryCount),
		zap.Duration("delay", delay),
	)
	return fmt.Errorf("job will retry: %w", err)
}

func ack(msg queue.MessageInterface) error {
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func nackToDLQ(msg queue.MessageInterface, cause error) error {
	if err := msg.Nack(false); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to nack job: %w", err))
	}
	return cause
}
