package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/pipeline"
	"github.com/benvon/smart-voice/internal/transcription"
)

func multipartAudio(t *testing.T, field, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="note"`, field))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func voiceRouter(h *VoiceHandler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/api/v1/voice-notes").Subrouter())
	return r
}

func TestVoiceHandler_Upload(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, pipeline.Request) (*pipeline.Result, error) {
		return &pipeline.Result{Success: false, Error: "transcript is empty"}, pipeline.ErrTranscription
	}

	tests := []struct {
		name        string
		field       string
		contentType string
		data        []byte
		processFunc func(context.Context, pipeline.Request) (*pipeline.Result, error)
		wantStatus  int
		wantStored  bool
		wantRun     bool
		wantFinal   models.UploadStatus
	}{
		{name: "audio is stored and processed", field: "audio", contentType: "audio/webm;codecs=opus", data: []byte("webm-bytes"),
			wantStatus: http.StatusCreated, wantStored: true, wantRun: true, wantFinal: models.UploadStatusProcessed},
		{name: "video rejected", field: "audio", contentType: "video/mp4", data: []byte("x"),
			wantStatus: http.StatusUnsupportedMediaType},
		{name: "unknown audio rejected", field: "audio", contentType: "audio/aac", data: []byte("x"),
			wantStatus: http.StatusUnsupportedMediaType},
		{name: "missing audio field", field: "file", contentType: "audio/mpeg", data: []byte("x"),
			wantStatus: http.StatusBadRequest},
		{name: "empty file", field: "audio", contentType: "audio/mpeg", data: nil,
			wantStatus: http.StatusBadRequest},
		{name: "pipeline failure", field: "audio", contentType: "audio/mpeg", data: []byte("mp3"), processFunc: failing,
			wantStatus: http.StatusUnprocessableEntity, wantStored: true, wantRun: true, wantFinal: models.UploadStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := &mockRunner{processFunc: tt.processFunc}
			uploads := &mockUploads{}
			objects := &mockObjects{}
			h := NewVoiceHandler(runner, uploads, objects, 0, nil)
			user := testUser()

			body, ct := multipartAudio(t, tt.field, tt.contentType, tt.data)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/voice-notes", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			voiceRouter(h).ServeHTTP(rec, withUser(req, user))

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if got := len(objects.objects) == 1; got != tt.wantStored {
				t.Errorf("stored = %v, want %v", got, tt.wantStored)
			}
			if got := runner.calls == 1; got != tt.wantRun {
				t.Errorf("ran = %v, want %v", got, tt.wantRun)
			}
			if !tt.wantRun {
				return
			}

			if len(uploads.created) != 1 {
				t.Fatalf("Expected one upload record, got %d", len(uploads.created))
			}
			upload := uploads.created[0]
			if upload.UserID != user.ID {
				t.Errorf("Expected upload owned by %s, got %s", user.ID, upload.UserID)
			}
			if !strings.HasPrefix(upload.ObjectKey, "voice/"+user.ID.String()+"/") {
				t.Errorf("Unexpected object key %q", upload.ObjectKey)
			}
			if runner.last.SourceRecordingID == nil || *runner.last.SourceRecordingID != upload.ID.String() {
				t.Errorf("Expected recording id %s, got %v", upload.ID, runner.last.SourceRecordingID)
			}
			if !strings.Contains(runner.last.AudioURL, upload.ObjectKey) {
				t.Errorf("Expected presigned URL for %s, got %s", upload.ObjectKey, runner.last.AudioURL)
			}
			if runner.last.UserID != user.ID {
				t.Errorf("Expected pipeline user %s, got %s", user.ID, runner.last.UserID)
			}
			if n := len(uploads.statuses); n != 1 || uploads.statuses[0] != tt.wantFinal {
				t.Errorf("Expected final status %s, got %v", tt.wantFinal, uploads.statuses)
			}
		})
	}
}

func TestVoiceHandler_UploadCleansUpWhenRecordFails(t *testing.T) {
	t.Parallel()

	uploads := &mockUploads{createFunc: func(context.Context, *models.VoiceUpload) error {
		return errors.New("db down")
	}}
	objects := &mockObjects{}
	runner := &mockRunner{}
	h := NewVoiceHandler(runner, uploads, objects, 0, nil)

	body, ct := multipartAudio(t, "audio", "audio/wav", []byte("wav"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice-notes", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	voiceRouter(h).ServeHTTP(rec, withUser(req, testUser()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if len(objects.deleted) != 1 {
		t.Errorf("Expected stored object to be deleted, got %v", objects.deleted)
	}
	if runner.calls != 0 {
		t.Error("Expected pipeline not to run")
	}
}

func TestVoiceHandler_Process(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        any
		processFunc func(context.Context, pipeline.Request) (*pipeline.Result, error)
		wantStatus  int
		wantSuccess bool
	}{
		{
			name:        "success",
			body:        map[string]any{"audioBase64": "aGVsbG8=", "mimeType": "webm"},
			wantStatus:  http.StatusOK,
			wantSuccess: true,
		},
		{
			name:       "missing audio",
			body:       map[string]any{"mimeType": "audio/webm"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad mime type",
			body:       map[string]any{"audioUrl": "https://example.com/a", "mimeType": "video/mp4"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       map[string]any{"audioUrl": "https://example.com/a", "mimeType": "audio/webm", "userId": uuid.NewString()},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "pipeline rejects request",
			body: map[string]any{"audioUrl": "https://example.com/a", "mimeType": "audio/webm"},
			processFunc: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
				return nil, fmt.Errorf("%w: no audio", pipeline.ErrInvalidRequest)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "all persistence failed",
			body: map[string]any{"audioUrl": "https://example.com/a", "mimeType": "audio/webm"},
			processFunc: func(context.Context, pipeline.Request) (*pipeline.Result, error) {
				return &pipeline.Result{Success: false, Error: "all extracted items failed to persist"}, pipeline.ErrAllPersistenceFailed
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := &mockRunner{processFunc: tt.processFunc}
			h := NewVoiceHandler(runner, &mockUploads{}, &mockObjects{}, 0, nil)
			user := testUser()

			req := newTestRequest(http.MethodPost, "/api/v1/voice-notes/process", tt.body)
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			voiceRouter(h).ServeHTTP(rec, withUser(req, user))

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if success, _ := body["success"].(bool); success != tt.wantSuccess {
				t.Errorf("Expected success=%v, got %v", tt.wantSuccess, body["success"])
			}
			if runner.calls == 1 && runner.last.UserID != user.ID {
				t.Errorf("Expected user from token, got %s", runner.last.UserID)
			}
		})
	}
}

func TestVoiceHandler_ProcessAudioURLPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		policy     transcription.URLPolicy
		audioURL   string
		wantStatus int
		wantCalls  int
	}{
		{name: "cloud metadata", audioURL: "http://169.254.169.254/latest/meta-data/", wantStatus: http.StatusBadRequest},
		{name: "loopback", audioURL: "http://127.0.0.1:6379/", wantStatus: http.StatusBadRequest},
		{name: "private network", audioURL: "http://192.168.1.10/a.webm", wantStatus: http.StatusBadRequest},
		{name: "localhost", audioURL: "http://localhost:8080/admin", wantStatus: http.StatusBadRequest},
		{name: "public host", audioURL: "https://cdn.example.com/a.webm", wantStatus: http.StatusOK, wantCalls: 1},
		{
			name:       "host outside allowlist",
			policy:     transcription.URLPolicy{AllowedHosts: []string{"voice.s3.us-east-1.amazonaws.com"}},
			audioURL:   "https://cdn.example.com/a.webm",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "allowlisted object store",
			policy:     transcription.URLPolicy{AllowedHosts: []string{"voice.s3.us-east-1.amazonaws.com"}},
			audioURL:   "https://voice.s3.us-east-1.amazonaws.com/voice/a.webm?X-Amz-Signature=abc",
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := &mockRunner{}
			h := NewVoiceHandler(runner, &mockUploads{}, &mockObjects{}, 0, nil).WithURLPolicy(tt.policy)

			req := newTestRequest(http.MethodPost, "/api/v1/voice-notes/process",
				map[string]any{"audioUrl": tt.audioURL, "mimeType": "audio/webm"})
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			voiceRouter(h).ServeHTTP(rec, withUser(req, testUser()))

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if runner.calls != tt.wantCalls {
				t.Errorf("Expected %d pipeline runs, got %d", tt.wantCalls, runner.calls)
			}
		})
	}
}

func TestVoiceHandler_ListUploads(t *testing.T) {
	t.Parallel()

	var gotPage, gotSize int
	uploads := &mockUploads{listFunc: func(_ context.Context, _ uuid.UUID, page, pageSize int) ([]*models.VoiceUpload, int, error) {
		gotPage, gotSize = page, pageSize
		return []*models.VoiceUpload{{ID: uuid.New()}}, 41, nil
	}}
	h := NewVoiceHandler(&mockRunner{}, uploads, &mockObjects{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/voice-notes?page=2&page_size=20", nil)
	rec := httptest.NewRecorder()
	voiceRouter(h).ServeHTTP(rec, withUser(req, testUser()))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if gotPage != 2 || gotSize != 20 {
		t.Errorf("Expected page 2 size 20, got %d/%d", gotPage, gotSize)
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	if data["total_pages"] != float64(3) {
		t.Errorf("Expected 3 pages, got %v", data["total_pages"])
	}
}

func TestVoiceHandler_RequiresUser(t *testing.T) {
	t.Parallel()

	h := NewVoiceHandler(&mockRunner{}, &mockUploads{}, &mockObjects{}, 0, nil)
	rec := httptest.NewRecorder()
	voiceRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/voice-notes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}
