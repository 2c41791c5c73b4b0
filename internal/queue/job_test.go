package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

type contentPayload struct {
	Titles []string `json:"titles"`
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	job, err := NewJob(JobTypeGenerateContent, userID, contentPayload{Titles: []string{"Weekly recap"}})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeGenerateContent {
		t.Errorf("Expected job type to be %s, got %s", JobTypeGenerateContent, job.Type)
	}
	if job.UserID != userID {
		t.Errorf("Expected user ID to be %s, got %s", userID, job.UserID)
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries to be %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}

	var got contentPayload
	if err := job.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if len(got.Titles) != 1 || got.Titles[0] != "Weekly recap" {
		t.Errorf("DecodePayload() = %+v", got)
	}
}

func TestNewJob_UnmarshalablePayload(t *testing.T) {
	t.Parallel()

	if _, err := NewJob(JobTypeLearnPatterns, uuid.New(), make(chan int)); err == nil {
		t.Error("Expected error for a payload that cannot be encoded")
	}
}

func TestJob_DecodePayload_Empty(t *testing.T) {
	t.Parallel()

	job, err := NewJob(JobTypeLearnPatterns, uuid.New(), nil)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	var v any
	if err := job.DecodePayload(&v); err == nil {
		t.Error("Expected error decoding an empty payload")
	}
}

func TestJob_RoundTripsThroughJSON(t *testing.T) {
	t.Parallel()

	rec := "rec-42"
	job, err := NewJob(JobTypeLearnPatterns, uuid.New(), []string{"a"})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	job.SourceRecordingID = &rec

	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Job
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ID != job.ID || decoded.Type != job.Type || decoded.SourceRecordingID == nil || *decoded.SourceRecordingID != rec {
		t.Errorf("decoded job = %+v, want %+v", decoded, job)
	}
	var items []string
	if err := decoded.DecodePayload(&items); err != nil || len(items) != 1 {
		t.Errorf("payload did not survive encoding: %v, %v", items, err)
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no time constraints", want: true},
		{name: "not before in past", notBefore: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not before in future", notBefore: timePtr(now.Add(time.Hour)), want: false},
		{name: "not after in future", notAfter: timePtr(now.Add(time.Hour)), want: true},
		{name: "not after in past", notAfter: timePtr(now.Add(-time.Hour)), want: false},
		{
			name:      "inside window",
			notBefore: timePtr(now.Add(-time.Hour)),
			notAfter:  timePtr(now.Add(time.Hour)),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{ID: uuid.New(), Type: JobTypeLearnPatterns, NotBefore: tt.notBefore, NotAfter: tt.notAfter}
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name     string
		notAfter *time.Time
		want     bool
	}{
		{name: "no expiration", want: false},
		{name: "expired", notAfter: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not expired", notAfter: timePtr(now.Add(time.Hour)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{ID: uuid.New(), Type: JobTypeGenerateContent, NotAfter: tt.notAfter}
			if got := job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_CanRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "no retries yet", retryCount: 0, maxRetries: 3, want: true},
		{name: "max retries minus one", retryCount: 2, maxRetries: 3, want: true},
		{name: "at max retries", retryCount: 3, maxRetries: 3, want: false},
		{name: "exceeded max retries", retryCount: 4, maxRetries: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			if got := job.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job, err := NewJob(JobTypeGenerateContent, uuid.New(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	at := time.Now().Add(time.Minute)

	next := job.Retry(at, json.RawMessage(`["b"]`))
	if next.ID != job.ID {
		t.Error("Retry should keep the job ID")
	}
	if next.RetryCount != 1 || job.RetryCount != 0 {
		t.Errorf("retry counts = %d (next), %d (original)", next.RetryCount, job.RetryCount)
	}
	if next.NotBefore == nil || !next.NotBefore.Equal(at) {
		t.Errorf("NotBefore = %v, want %v", next.NotBefore, at)
	}
	if string(next.Payload) != `["b"]` || string(job.Payload) != `["a","b"]` {
		t.Errorf("payloads = %s (next), %s (original)", next.Payload, job.Payload)
	}

	same := job.Retry(at, nil)
	if string(same.Payload) != string(job.Payload) {
		t.Error("nil payload should keep the original")
	}
}

func TestJob_IncrementRetry(t *testing.T) {
	t.Parallel()

	job := &Job{MaxRetries: 3}
	for want := 1; want <= 3; want++ {
		job.IncrementRetry()
		if job.RetryCount != want {
			t.Errorf("Expected retry count %d, got %d", want, job.RetryCount)
		}
	}
}

// Helper function to create time pointers
func timePtr(t time.Time) *time.Time {
	return &t
}
