package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/pipeline"
)

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "user@example.com"}
}

func withUser(r *http.Request, user *models.User) *http.Request {
	return r.WithContext(middleware.SetUserInContext(r.Context(), user))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

type mockRunner struct {
	processFunc func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	last        pipeline.Request
	calls       int
}

func (m *mockRunner) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.last = req
	m.calls++
	if m.processFunc != nil {
		return m.processFunc(ctx, req)
	}
	return &pipeline.Result{Success: true, RunID: "run", Transcription: "hello"}, nil
}

type mockUploads struct {
	createFunc func(ctx context.Context, u *models.VoiceUpload) error
	listFunc   func(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.VoiceUpload, int, error)
	created    []*models.VoiceUpload
	statuses   []models.UploadStatus
}

func (m *mockUploads) CreateUpload(ctx context.Context, u *models.VoiceUpload) error {
	m.created = append(m.created, u)
	if m.createFunc != nil {
		return m.createFunc(ctx, u)
	}
	return nil
}

func (m *mockUploads) UpdateUploadStatus(_ context.Context, _ uuid.UUID, status models.UploadStatus, _ *string) error {
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockUploads) ListUploads(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.VoiceUpload, int, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID, page, pageSize)
	}
	return nil, 0, nil
}

type mockObjects struct {
	mu      sync.Mutex
	putErr  error
	objects map[string][]byte
	deleted []string
}

func (m *mockObjects) Put(_ context.Context, key string, body io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *mockObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.example.com/" + key + "?sig=abc", nil
}

func (m *mockObjects) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

type mockTaskStore struct {
	getFunc      func(ctx context.Context, userID, id uuid.UUID) (*models.Task, error)
	completeFunc func(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Task, error)
	updateFunc   func(ctx context.Context, userID, id uuid.UUID, changes *patterns.Changes, at time.Time) (*models.Task, error)
	listFunc     func(ctx context.Context, userID uuid.UUID, status *models.TaskStatus, limit int) ([]*models.Task, error)
}

func (m *mockTaskStore) GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error) {
	return m.getFunc(ctx, userID, id)
}

func (m *mockTaskStore) CompleteTask(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Task, error) {
	return m.completeFunc(ctx, userID, id, at)
}

func (m *mockTaskStore) UpdateTask(ctx context.Context, userID, id uuid.UUID, changes *patterns.Changes, at time.Time) (*models.Task, error) {
	return m.updateFunc(ctx, userID, id, changes, at)
}

func (m *mockTaskStore) ListTasks(ctx context.Context, userID uuid.UUID, status *models.TaskStatus, limit int) ([]*models.Task, error) {
	return m.listFunc(ctx, userID, status, limit)
}

type mockProfiles struct {
	getFunc    func(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error)
	upsertFunc func(ctx context.Context, p *models.UserContextProfile) error
}

func (m *mockProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error) {
	return m.getFunc(ctx, userID)
}

func (m *mockProfiles) UpsertProfile(ctx context.Context, p *models.UserContextProfile) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, p)
	}
	return nil
}

type mockLearning struct {
	events []patterns.ItemEvent
	err    error
}

func (m *mockLearning) LearnPatterns(_ context.Context, _ uuid.UUID, _ *string, events []patterns.ItemEvent) error {
	m.events = append(m.events, events...)
	return m.err
}

type mockContextManager struct {
	initFunc     func(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error)
	currentFunc  func(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error)
	teardownFunc func(ctx context.Context, userID uuid.UUID) error
	inits        int
}

func (m *mockContextManager) Init(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
	m.inits++
	if m.initFunc != nil {
		return m.initFunc(ctx, userID)
	}
	return &models.ContextDocument{UserID: userID, Content: "doc"}, nil
}

func (m *mockContextManager) Current(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
	return m.currentFunc(ctx, userID)
}

func (m *mockContextManager) Teardown(ctx context.Context, userID uuid.UUID) error {
	if m.teardownFunc != nil {
		return m.teardownFunc(ctx, userID)
	}
	return nil
}

type mockPatternLister struct {
	listFunc func(ctx context.Context, userID uuid.UUID, patternType models.PatternType, limit int) ([]*models.BehavioralPattern, error)
}

func (m *mockPatternLister) ListPatterns(ctx context.Context, userID uuid.UUID, patternType models.PatternType, limit int) ([]*models.BehavioralPattern, error) {
	return m.listFunc(ctx, userID, patternType, limit)
}

type mockSuggester struct {
	suggestFunc func(ctx context.Context, userID uuid.UUID, d patterns.Draft) (*patterns.Suggestion, error)
}

func (m *mockSuggester) Suggest(ctx context.Context, userID uuid.UUID, d patterns.Draft) (*patterns.Suggestion, error) {
	return m.suggestFunc(ctx, userID, d)
}
