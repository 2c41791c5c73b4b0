package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/request"
	"github.com/benvon/smart-voice/internal/validation"
)

// TaskStore reads, edits and completes tasks.
type TaskStore interface {
	GetTask(ctx context.Context, userID, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, userID, id uuid.UUID, changes *patterns.Changes, at time.Time) (*models.Task, error)
	CompleteTask(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID, status *models.TaskStatus, limit int) ([]*models.Task, error)
}

// ProfileReader reads the onboarding profile.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error)
}

// LearningScheduler hands item events to the pattern learner.
type LearningScheduler interface {
	LearnPatterns(ctx context.Context, userID uuid.UUID, sourceRecordingID *string, events []patterns.ItemEvent) error
}

// TaskHandler handles task-related requests.
type TaskHandler struct {
	tasks     TaskStore
	profiles  ProfileReader
	scheduler LearningScheduler
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(tasks TaskStore, profiles ProfileReader, scheduler LearningScheduler, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{tasks: tasks, profiles: profiles, scheduler: scheduler, logger: logger, now: time.Now}
}

// RegisterRoutes registers task routes on the given router.
// The router should already have the /api/v1/tasks prefix.
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/{id}/complete", h.CompleteTask).Methods("POST")
}

// UpdateTaskRequest edits a task. Omitted fields are left alone.
type UpdateTaskRequest struct {
	Priority *string   `json:"priority" validate:"omitempty,priority"`
	Category *string   `json:"category" validate:"omitempty,max=100"`
	Tags     *[]string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

// diff returns only the fields that differ from t.
func (req *UpdateTaskRequest) diff(t *models.Task) *patterns.Changes {
	c := &patterns.Changes{}
	if req.Priority != nil {
		if p, ok := models.ParsePriority(*req.Priority); ok && p != t.Priority {
			c.Priority = &p
		}
	}
	if req.Category != nil {
		if cat := validation.SanitizeText(*req.Category); cat != "" && (t.Category == nil || *t.Category != cat) {
			c.Category = &cat
		}
	}
	if req.Tags != nil {
		tags := validation.SanitizeTags(*req.Tags)
		if !sameTags(tags, t.Tags) {
			c.Tags = tags
			if c.Tags == nil {
				c.Tags = []string{}
			}
		}
	}
	return c
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range a {
		if !seen[strings.ToLower(t)] {
			return false
		}
	}
	return true
}

// UpdateTask changes a task's priority, category or tags and feeds the
// change to the pattern learner.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task ID")
		return
	}
	var req UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	log := h.logger.With(zap.String("user_id", user.ID.String()), zap.String("task_id", id.String()))

	existing, err := h.tasks.GetTask(ctx, user.ID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	if err != nil {
		log.Error("task_get_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load task")
		return
	}
	changes := req.diff(existing)
	if changes.Empty() {
		respondJSON(w, http.StatusOK, existing)
		return
	}

	now := h.now().UTC()
	task, err := h.tasks.UpdateTask(ctx, user.ID, id, changes, now)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	if err != nil {
		log.Error("task_update_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update task")
		return
	}
	// Cleared tags teach nothing.
	if len(changes.Tags) == 0 {
		changes.Tags = nil
	}
	if !changes.Empty() {
		h.learn(ctx, user.ID, patterns.UpdateEvent(user.ID, task, changes, h.timezone(ctx, user.ID), now), log)
	}
	log.Info("task_updated")
	respondJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) timezone(ctx context.Context, userID uuid.UUID) string {
	if profile, err := h.profiles.GetProfile(ctx, userID); err == nil {
		return profile.Location().String()
	}
	return time.UTC.String()
}

func (h *TaskHandler) learn(ctx context.Context, userID uuid.UUID, event patterns.ItemEvent, log *zap.Logger) {
	var recordingID *string
	if event.Task != nil {
		recordingID = event.Task.SourceRecordingID
	}
	if err := h.scheduler.LearnPatterns(ctx, userID, recordingID, []patterns.ItemEvent{event}); err != nil {
		log.Warn("task_learning_not_scheduled", zap.String("event", string(event.Kind)), zap.Error(err))
	}
}

// ListTasks returns the user's tasks, newest first.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var status *models.TaskStatus
	switch s := models.TaskStatus(r.URL.Query().Get("status")); s {
	case "":
	case models.TaskStatusPending, models.TaskStatusCompleted:
		status = &s
	default:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "status must be 'pending' or 'completed'")
		return
	}

	tasks, err := h.tasks.ListTasks(r.Context(), user.ID, status, request.IntParam(r, "limit", 50, 200))
	if err != nil {
		h.logger.Error("task_list_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// CompleteTask marks a task completed and feeds the completion to the
// pattern learner. Completing a completed task is a no-op.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task ID")
		return
	}

	ctx := r.Context()
	log := h.logger.With(zap.String("user_id", user.ID.String()), zap.String("task_id", id.String()))

	existing, err := h.tasks.GetTask(ctx, user.ID, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	if err != nil {
		log.Error("task_get_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load task")
		return
	}
	if existing.Status == models.TaskStatusCompleted {
		respondJSON(w, http.StatusOK, existing)
		return
	}

	now := h.now().UTC()
	task, err := h.tasks.CompleteTask(ctx, user.ID, id, now)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	if err != nil {
		log.Error("task_complete_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to complete task")
		return
	}

	h.learn(ctx, user.ID, patterns.UpdateEvent(user.ID, task, nil, h.timezone(ctx, user.ID), now), log)
	log.Info("task_completed")
	respondJSON(w, http.StatusOK, task)
}
