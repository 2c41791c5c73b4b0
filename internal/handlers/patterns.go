package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
	"github.com/benvon/smart-voice/internal/request"
	"github.com/benvon/smart-voice/internal/validation"
)

// PatternLister reads learned patterns.
type PatternLister interface {
	ListPatterns(ctx context.Context, userID uuid.UUID, patternType models.PatternType, limit int) ([]*models.BehavioralPattern, error)
}

// Suggester turns learned patterns into advice for a draft item.
type Suggester interface {
	Suggest(ctx context.Context, userID uuid.UUID, d patterns.Draft) (*patterns.Suggestion, error)
}

// PatternHandler exposes learned behavioral patterns.
type PatternHandler struct {
	store   PatternLister
	advisor Suggester
	logger  *zap.Logger
}

// NewPatternHandler creates a pattern handler.
func NewPatternHandler(store PatternLister, advisor Suggester, logger *zap.Logger) *PatternHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternHandler{store: store, advisor: advisor, logger: logger}
}

// RegisterRoutes registers pattern routes on the given router.
// The router should already have the /api/v1/patterns prefix.
func (h *PatternHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListPatterns).Methods("GET")
	r.HandleFunc("/suggestions", h.Suggest).Methods("GET")
}

// PatternView is a pattern with its human-readable description.
type PatternView struct {
	*models.BehavioralPattern
	Description string `json:"description"`
}

// ListPatterns returns patterns ordered by confidence, optionally of one type.
func (h *PatternHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var patternType models.PatternType
	if t := r.URL.Query().Get("type"); t != "" {
		if err := validation.ValidatePatternType(t); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		patternType = models.PatternType(t)
	}
	limit := request.IntParam(r, "limit", 50, 200)

	found, err := h.store.ListPatterns(r.Context(), user.ID, patternType, limit)
	if err != nil {
		h.logger.Error("pattern_list_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list patterns")
		return
	}
	views := make([]PatternView, 0, len(found))
	for _, p := range found {
		views = append(views, PatternView{BehavioralPattern: p, Description: patterns.Describe(p)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"patterns": views})
}

// Suggest returns advisory category, tags, priority and due time for a draft title.
func (h *PatternHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	q := r.URL.Query()
	draft := patterns.Draft{
		Title:    strings.TrimSpace(q.Get("title")),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if draft.Title == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "title is required")
		return
	}
	if tags := q.Get("tags"); tags != "" {
		draft.Tags = validation.SanitizeTags(strings.Split(tags, ","))
	}

	suggestion, err := h.advisor.Suggest(r.Context(), user.ID, draft)
	if err != nil {
		h.logger.Error("pattern_suggest_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to build suggestions")
		return
	}
	respondJSON(w, http.StatusOK, suggestion)
}
