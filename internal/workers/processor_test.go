package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/content"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/queue"
	"github.com/benvon/smart-voice/internal/services/ai"
)

// mockMessage records how a job was settled.
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error { m.acked = true; return nil }
func (m *mockMessage) Nack(requeue bool) error {
	m.nacked, m.requeue = true, requeue
	return nil
}
func (m *mockMessage) GetJob() *queue.Job { return m.job }

// mockQueue is a mock implementation of JobQueue
type mockQueue struct {
	mu          sync.Mutex
	enqueued    []*queue.Job
	enqueueFunc func(ctx context.Context, job *queue.Job) error
}

func (q *mockQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if q.enqueueFunc != nil {
		if err := q.enqueueFunc(ctx, job); err != nil {
			return err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *mockQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}
func (q *mockQueue) Close() error                      { return nil }
func (q *mockQueue) HealthCheck(context.Context) error { return nil }

type mockObserver struct {
	mu          sync.Mutex
	observed    int
	observeFunc func(ctx context.Context, e patterns.ItemEvent) error
}

func (m *mockObserver) Observe(ctx context.Context, e patterns.ItemEvent) error {
	m.mu.Lock()
	m.observed++
	m.mu.Unlock()
	if m.observeFunc != nil {
		return m.observeFunc(ctx, e)
	}
	return nil
}

type mockRunner struct {
	runFunc func(ctx context.Context, items []*models.GeneratedContent) content.Report
}

func (m *mockRunner) Run(ctx context.Context, items []*models.GeneratedContent) content.Report {
	if m.runFunc != nil {
		return m.runFunc(ctx, items)
	}
	return content.Report{Drafted: items}
}

func newJob(t *testing.T, jobType queue.JobType, payload any) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(jobType, uuid.New(), payload)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	return job
}

func contentItems(n int) []*models.GeneratedContent {
	items := make([]*models.GeneratedContent, n)
	for i := range items {
		items[i] = &models.GeneratedContent{ID: uuid.New(), Title: "draft", Status: models.ContentStatusPending}
	}
	return items
}

func TestProcessJob_LearnPatterns(t *testing.T) {
	t.Parallel()

	obs := &mockObserver{}
	p := NewProcessor(NewHandlers(obs, &mockRunner{}, nil), &mockQueue{}, nil)
	events := []patterns.ItemEvent{{Kind: patterns.EventCreated}, {Kind: patterns.EventCreated}}
	msg := &mockMessage{job: newJob(t, queue.JobTypeLearnPatterns, events)}

	if err := p.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected message to be acked")
	}
	if obs.observed != 2 {
		t.Errorf("Expected 2 observations, got %d", obs.observed)
	}
}

func TestProcessJob_LearnPatternsFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	obs := &mockObserver{observeFunc: func(context.Context, patterns.ItemEvent) error {
		return errors.New("db down")
	}}
	q := &mockQueue{}
	p := NewProcessor(NewHandlers(obs, &mockRunner{}, nil), q, nil)
	msg := &mockMessage{job: newJob(t, queue.JobTypeLearnPatterns, []patterns.ItemEvent{{Kind: patterns.EventCreated}})}

	if err := p.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked || msg.nacked {
		t.Errorf("Expected ack without nack, got acked=%v nacked=%v", msg.acked, msg.nacked)
	}
	if len(q.enqueued) != 0 {
		t.Errorf("Expected no re-enqueue, got %d", len(q.enqueued))
	}
}

func TestProcessJob_GenerateContentSuccess(t *testing.T) {
	t.Parallel()

	q := &mockQueue{}
	p := NewProcessor(NewHandlers(&mockObserver{}, &mockRunner{}, nil), q, nil)
	msg := &mockMessage{job: newJob(t, queue.JobTypeGenerateContent, contentItems(2))}

	if err := p.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected message to be acked")
	}
	if len(q.enqueued) != 0 {
		t.Errorf("Expected no re-enqueue, got %d", len(q.enqueued))
	}
}

func TestProcessJob_GenerateContentRetriesOnlyFailedItems(t *testing.T) {
	t.Parallel()

	items := contentItems(3)
	failedID := items[1].ID
	rateLimited := &ai.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}

	runner := &mockRunner{runFunc: func(_ context.Context, in []*models.GeneratedContent) content.Report {
		var r content.Report
		for _, it := range in {
			if it.ID == failedID {
				it.Status = models.ContentStatusFailed
				r.Failed = append(r.Failed, it)
				continue
			}
			r.Drafted = append(r.Drafted, it)
		}
		if len(r.Failed) > 0 {
			r.Err = rateLimited
		}
		return r
	}}
	q := &mockQueue{}
	p := NewProcessor(NewHandlers(&mockObserver{}, runner, nil), q, nil)
	msg := &mockMessage{job: newJob(t, queue.JobTypeGenerateContent, items)}

	before := time.Now()
	err := p.ProcessJob(context.Background(), msg)
	if err == nil {
		t.Fatal("Expected a retry error")
	}
	if !msg.acked || msg.nacked {
		t.Errorf("Expected ack after re-enqueue, got acked=%v nacked=%v", msg.acked, msg.nacked)
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("Expected 1 re-enqueued job, got %d", len(q.enqueued))
	}

	next := q.enqueued[0]
	if next.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", next.RetryCount)
	}
	if next.NotBefore == nil || next.NotBefore.Before(before.Add(time.Minute)) {
		t.Errorf("Expected rate limit backoff of at least a minute, NotBefore = %v", next.NotBefore)
	}
	var retried []*models.GeneratedContent
	if err := json.Unmarshal(next.Payload, &retried); err != nil {
		t.Fatalf("Unmarshal retry payload: %v", err)
	}
	if len(retried) != 1 || retried[0].ID != failedID {
		t.Fatalf("Expected only the failed item to be retried, got %d items", len(retried))
	}
	if retried[0].Status != models.ContentStatusPending {
		t.Errorf("Expected retried item to be pending, got %s", retried[0].Status)
	}
}

func TestProcessJob_GenerateContentRetriesExhausted(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{runFunc: func(_ context.Context, in []*models.GeneratedContent) content.Report {
		return content.Report{Failed: in, Err: errors.New("empty draft")}
	}}
	q := &mockQueue{}
	p := NewProcessor(NewHandlers(&mockObserver{}, runner, nil), q, nil)
	job := newJob(t, queue.JobTypeGenerateContent, contentItems(1))
	job.RetryCount = job.MaxRetries
	msg := &mockMessage{job: job}

	if err := p.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected error")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("Expected nack to DLQ, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
	}
	if len(q.enqueued) != 0 {
		t.Errorf("Expected no re-enqueue, got %d", len(q.enqueued))
	}
}

func TestProcessJob_ReenqueueFailureGoesToDLQ(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{runFunc: func(_ context.Context, in []*models.GeneratedContent) content.Report {
		return content.Report{Failed: in, Err: errors.New("timeout")}
	}}
	q := &mockQueue{enqueueFunc: func(context.Context, *queue.Job) error { return errors.New("broker down") }}
	p := NewProcessor(NewHandlers(&mockObserver{}, runner, nil), q, nil)
	msg := &mockMessage{job: newJob(t, queue.JobTypeGenerateContent, contentItems(1))}

	if err := p.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected error")
	}
	if !msg.nacked || msg.requeue || msg.acked {
		t.Errorf("Expected nack to DLQ only, got acked=%v nacked=%v requeue=%v", msg.acked, msg.nacked, msg.requeue)
	}
}

func TestProcessJob_Rejections(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name        string
		job func(t *testing.T) *queue.Job
	}{
		{
			name: "unknown job type",
			job: func(t *testing.T) *queue.Job {
				return newJob(t, queue.JobType("reprocess_user"), []string{})
			},
		},
		{
			name: "undecodable payload",
			job: func(t *testing.T) *queue.Job {
				return newJob(t, queue.JobTypeLearnPatterns, "not a list")
			},
		},
		{
			name: "expired",
			job: func(t *testing.T) *queue.Job {
				j := newJob(t, queue.JobTypeLearnPatterns, []patterns.ItemEvent{})
				j.NotAfter = &past
				return j
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewProcessor(NewHandlers(&mockObserver{}, &mockRunner{}, nil), &mockQueue{}, nil)
			msg := &mockMessage{job: tt.job(t)}
			if err := p.ProcessJob(context.Background(), msg); err == nil {
				t.Error("Expected error")
			}
			if !msg.nacked || msg.requeue {
				t.Errorf("nacked=%v requeue=%v, want nack to DLQ", msg.nacked, msg.requeue)
			}
			if msg.acked {
				t.Error("Expected no ack")
			}
		})
	}
}

func TestProcessJob_EarlyDelivery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		notBefore    time.Duration
		waitErr      error
		enqueueErr   error
		realWait     bool
		wantErr      bool
		wantAck      bool
		wantRequeue  bool
		wantDeferred bool
		wantObserved int
	}{
		{name: "far future is republished", notBefore: time.Hour, wantErr: true, wantAck: true, wantDeferred: true},
		{name: "due within the hold runs", notBefore: 30 * time.Millisecond, realWait: true, wantAck: true, wantObserved: 1},
		{name: "shutdown during hold requeues", notBefore: time.Hour, waitErr: context.Canceled, wantErr: true, wantRequeue: true},
		{name: "republish failure requeues", notBefore: time.Hour, enqueueErr: errors.New("channel closed"), wantErr: true, wantRequeue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obs := &mockObserver{}
			q := &mockQueue{}
			if tt.enqueueErr != nil {
				q.enqueueFunc = func(context.Context, *queue.Job) error { return tt.enqueueErr }
			}
			p := NewProcessor(NewHandlers(obs, &mockRunner{}, nil), q, nil)
			var waited []time.Duration
			p.wait = func(_ context.Context, d time.Duration) error {
				waited = append(waited, d)
				if tt.realWait {
					time.Sleep(d)
				}
				return tt.waitErr
			}

			job := newJob(t, queue.JobTypeLearnPatterns, []patterns.ItemEvent{{Kind: patterns.EventCreated}})
			notBefore := time.Now().Add(tt.notBefore)
			job.NotBefore = &notBefore
			msg := &mockMessage{job: job}

			err := p.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(waited) != 1 || waited[0] > maxEarlyWait {
				t.Errorf("Expected one bounded wait, got %v", waited)
			}
			if msg.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", msg.acked, tt.wantAck)
			}
			if tt.wantRequeue != (msg.nacked && msg.requeue) {
				t.Errorf("nacked=%v requeue=%v, want requeue %v", msg.nacked, msg.requeue, tt.wantRequeue)
			}
			if tt.wantDeferred {
				if len(q.enqueued) != 1 || q.enqueued[0].ID != job.ID || !q.enqueued[0].NotBefore.Equal(notBefore) {
					t.Errorf("Expected the same job republished, got %v", q.enqueued)
				}
			} else if len(q.enqueued) != 0 {
				t.Errorf("Expected nothing republished, got %d", len(q.enqueued))
			}
			if obs.observed != tt.wantObserved {
				t.Errorf("Expected %d observations, got %d", tt.wantObserved, obs.observed)
			}
		})
	}
}

func TestQueueScheduler(t *testing.T) {
	t.Parallel()

	q := &mockQueue{}
	s := NewQueueScheduler(q)
	userID := uuid.New()
	rec := "rec-1"

	if err := s.LearnPatterns(context.Background(), userID, &rec, nil); err != nil {
		t.Fatalf("LearnPatterns(nil) error = %v", err)
	}
	if len(q.enqueued) != 0 {
		t.Fatal("Expected empty work to be skipped")
	}

	if err := s.GenerateContent(context.Background(), userID, &rec, contentItems(2)); err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(q.enqueued))
	}
	job := q.enqueued[0]
	if job.Type != queue.JobTypeGenerateContent || job.UserID != userID {
		t.Errorf("job = %s for %s", job.Type, job.UserID)
	}
	if job.SourceRecordingID == nil || *job.SourceRecordingID != rec {
		t.Error("Expected source recording id on job")
	}
	var items []*models.GeneratedContent
	if err := job.DecodePayload(&items); err != nil || len(items) != 2 {
		t.Errorf("payload = %d items, err %v", len(items), err)
	}
}

func TestQueueScheduler_EnqueueError(t *testing.T) {
	t.Parallel()

	q := &mockQueue{enqueueFunc: func(context.Context, *queue.Job) error { return errors.New("broker down") }}
	err := NewQueueScheduler(q).LearnPatterns(context.Background(), uuid.New(), nil,
		[]patterns.ItemEvent{{Kind: patterns.EventCreated}})
	if err == nil {
		t.Error("Expected enqueue error")
	}
}
