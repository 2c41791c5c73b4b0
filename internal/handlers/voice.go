package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/pipeline"
	"github.com/benvon/smart-voice/internal/request"
	"github.com/benvon/smart-voice/internal/storage"
	"github.com/benvon/smart-voice/internal/transcription"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// DefaultProcessingWindow bounds one synchronous pipeline run.
const DefaultProcessingWindow = 75 * time.Second

// PipelineRunner runs the voice pipeline.
type PipelineRunner interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// UploadStore records accepted uploads.
type UploadStore interface {
	CreateUpload(ctx context.Context, u *models.VoiceUpload) error
	UpdateUploadStatus(ctx context.Context, id uuid.UUID, status models.UploadStatus, transcription *string) error
	ListUploads(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.VoiceUpload, int, error)
}

// VoiceHandler accepts voice notes and runs them through the pipeline.
type VoiceHandler struct {
	runner     PipelineRunner
	uploads    UploadStore
	objects    storage.ObjectStore
	presignTTL time.Duration
	window     time.Duration
	urlPolicy  *transcription.URLPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// NewVoiceHandler creates a voice handler. A zero window uses DefaultProcessingWindow.
func NewVoiceHandler(runner PipelineRunner, uploads UploadStore, objects storage.ObjectStore, window time.Duration, logger *zap.Logger) *VoiceHandler {
	if window <= 0 {
		window = DefaultProcessingWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoiceHandler{
		runner:     runner,
		uploads:    uploads,
		objects:    objects,
		presignTTL: storage.DefaultPresignTTL,
		window:     window,
		logger:     logger,
		now:        time.Now,
	}
}

// WithURLPolicy rejects client-supplied audio URLs outside p before the
// pipeline runs.
func (h *VoiceHandler) WithURLPolicy(p transcription.URLPolicy) *VoiceHandler {
	h.urlPolicy = &p
	return h
}

// RegisterRoutes registers voice note routes on the given router.
// The router should already have the /api/v1/voice-notes prefix.
func (h *VoiceHandler) RegisterRoutes(r *mux.Router) {
	r.Handle("", middleware.MaxRequestSize(middleware.MaxVoiceUploadSize)(
		middleware.ContentType("multipart/form-data")(http.HandlerFunc(h.Upload)))).Methods("POST")
	r.HandleFunc("", h.ListUploads).Methods("GET")
	r.Handle("/process", middleware.MaxRequestSize(middleware.MaxProcessRequestSize)(
		middleware.ContentType()(http.HandlerFunc(h.Process)))).Methods("POST")
}

// VoiceNoteResponse is the result of an upload.
type VoiceNoteResponse struct {
	Upload *models.VoiceUpload `json:"upload"`
	Result *pipeline.Result    `json:"result"`
}

// ListUploadsResponse is a page of uploads.
type ListUploadsResponse struct {
	Uploads    []*models.VoiceUpload `json:"uploads"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"total_pages"`
}

// ProcessVoiceNoteRequest runs the pipeline on audio the client already hosts
// or inlines. The user is always taken from the token.
type ProcessVoiceNoteRequest struct {
	AudioURL          string  `json:"audioUrl,omitempty" validate:"required_without=AudioBase64,omitempty,url"`
	AudioBase64       string  `json:"audioBase64,omitempty" validate:"required_without=AudioURL"`
	MimeType          string  `json:"mimeType" validate:"required,audio_mime"`
	SourceRecordingID *string `json:"sourceRecordingId,omitempty" validate:"omitempty,max=255"`
	SkipSaveItems     bool    `json:"skipSaveItems,omitempty"`
}

// Upload stores a multipart audio file and processes it.
func (h *VoiceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
				fmt.Sprintf("Upload exceeds maximum size of %d bytes", transcription.MaxAudioBytes))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "audio file is required")
		return
	}
	defer func() { _ = file.Close() }()

	declared := header.Header.Get("Content-Type")
	if strings.HasPrefix(strings.ToLower(declared), "video/") {
		respondJSONError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "Video uploads are not accepted")
		return
	}
	mimeType, err := transcription.NormalizeMimeType(declared)
	if err != nil {
		respondJSONError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", err.Error())
		return
	}
	switch {
	case header.Size == 0:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "audio file is empty")
		return
	case header.Size > transcription.MaxAudioBytes:
		respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
			fmt.Sprintf("Upload exceeds maximum size of %d bytes", transcription.MaxAudioBytes))
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	upload := &models.VoiceUpload{
		ID:        uuid.New(),
		UserID:    user.ID,
		ObjectKey: storage.ObjectKey(user.ID, transcription.Extension(mimeType), now),
		MimeType:  mimeType,
		SizeBytes: header.Size,
		Status:    models.UploadStatusStored,
		CreatedAt: now,
		UpdatedAt: now,
	}
	log := h.logger.With(zap.String("user_id", user.ID.String()), zap.String("upload_id", upload.ID.String()))

	if err := h.objects.Put(ctx, upload.ObjectKey, file, mimeType); err != nil {
		log.Error("voice_upload_store_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to store audio")
		return
	}
	if err := h.uploads.CreateUpload(ctx, upload); err != nil {
		log.Error("voice_upload_record_failed", zap.Error(err))
		if derr := h.objects.Delete(context.WithoutCancel(ctx), upload.ObjectKey); derr != nil {
			log.Warn("voice_upload_cleanup_failed", zap.Error(derr))
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to record upload")
		return
	}

	audioURL, err := h.objects.PresignGet(ctx, upload.ObjectKey, h.presignTTL)
	if err != nil {
		log.Error("voice_upload_presign_failed", zap.Error(err))
		h.finish(ctx, log, upload, models.UploadStatusFailed, nil)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to prepare audio")
		return
	}

	recordingID := upload.ID.String()
	runCtx, cancel := context.WithTimeout(ctx, h.window)
	res, err := h.runner.Process(runCtx, pipeline.Request{
		UserID:            user.ID,
		AudioURL:          audioURL,
		MimeType:          mimeType,
		SourceRecordingID: &recordingID,
		SkipSaveItems:     r.FormValue("dry_run") == "true",
	})
	cancel()

	status := models.UploadStatusProcessed
	if err != nil {
		status = models.UploadStatusFailed
	}
	var text *string
	if res != nil && res.Transcription != "" {
		text = &res.Transcription
	}
	h.finish(ctx, log, upload, status, text)

	resp := VoiceNoteResponse{Upload: upload, Result: res}
	if err != nil {
		log.Warn("voice_note_failed", zap.Error(err))
		respondResult(w, http.StatusUnprocessableEntity, false, resp, failureMessage(res, err))
		return
	}
	respondResult(w, http.StatusCreated, true, resp, "")
}

// finish records the final upload status; a failure here does not change the response.
func (h *VoiceHandler) finish(ctx context.Context, log *zap.Logger, upload *models.VoiceUpload, status models.UploadStatus, text *string) {
	upload.Status = status
	upload.Transcription = text
	upload.UpdatedAt = h.now().UTC()
	if err := h.uploads.UpdateUploadStatus(context.WithoutCancel(ctx), upload.ID, status, text); err != nil {
		log.Warn("voice_upload_status_update_failed", zap.String("status", string(status)), zap.Error(err))
	}
}

// ListUploads returns the user's uploads, newest first.
func (h *VoiceHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	page, pageSize := request.Page(r, 20, 100)
	uploads, total, err := h.uploads.ListUploads(r.Context(), user.ID, page, pageSize)
	if err != nil {
		h.logger.Error("voice_upload_list_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list uploads")
		return
	}
	if uploads == nil {
		uploads = []*models.VoiceUpload{}
	}
	respondJSON(w, http.StatusOK, ListUploadsResponse{
		Uploads:    uploads,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

// Process runs the pipeline on a JSON request.
func (h *VoiceHandler) Process(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	var req ProcessVoiceNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AudioURL != "" && h.urlPolicy != nil {
		if err := h.urlPolicy.Check(req.AudioURL); err != nil {
			h.logger.Warn("voice_note_audio_url_rejected", zap.String("user_id", user.ID.String()), zap.Error(err))
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "audioUrl is not an allowed audio source")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.window)
	defer cancel()
	res, err := h.runner.Process(ctx, pipeline.Request{
		UserID:            user.ID,
		AudioURL:          req.AudioURL,
		AudioBase64:       req.AudioBase64,
		MimeType:          req.MimeType,
		SourceRecordingID: req.SourceRecordingID,
		SkipSaveItems:     req.SkipSaveItems,
	})
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case err != nil:
		h.logger.Warn("voice_note_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondResult(w, http.StatusUnprocessableEntity, false, res, failureMessage(res, err))
	default:
		respondResult(w, http.StatusOK, true, res, "")
	}
}

func failureMessage(res *pipeline.Result, err error) string {
	if res != nil && res.Error != "" {
		return res.Error
	}
	return err.Error()
}
