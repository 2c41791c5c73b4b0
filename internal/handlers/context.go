package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
)

// ContextManager owns the per-user context document lifecycle.
type ContextManager interface {
	Init(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error)
	Current(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error)
	Teardown(ctx context.Context, userID uuid.UUID) error
}

// ContextHandler exposes the user's live context document.
type ContextHandler struct {
	docs   ContextManager
	logger *zap.Logger
}

// NewContextHandler creates a context handler.
func NewContextHandler(docs ContextManager, logger *zap.Logger) *ContextHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextHandler{docs: docs, logger: logger}
}

// RegisterRoutes registers context routes on the given router.
// The router should already have the /api/v1/context prefix.
func (h *ContextHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetContext).Methods("GET")
	r.HandleFunc("", h.RebuildContext).Methods("POST")
	r.HandleFunc("", h.DeleteContext).Methods("DELETE")
}

// GetContext returns the stored document.
func (h *ContextHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	doc, err := h.docs.Current(r.Context(), user.ID)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No context document yet")
		return
	}
	if err != nil {
		h.logger.Error("context_get_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load context")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// RebuildContext reassembles and stores the document from current sources.
func (h *ContextHandler) RebuildContext(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	doc, err := h.docs.Init(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("context_rebuild_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to rebuild context")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// DeleteContext removes the document. It is recreated on the next voice note.
func (h *ContextHandler) DeleteContext(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	if err := h.docs.Teardown(r.Context(), user.ID); err != nil {
		h.logger.Error("context_delete_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete context")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
