package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/middleware"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/validation"
)

// ProfileStore reads and writes onboarding profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserContextProfile, error)
	UpsertProfile(ctx context.Context, p *models.UserContextProfile) error
}

// ContextInitializer rebuilds a user's context document.
type ContextInitializer interface {
	Init(ctx context.Context, userID uuid.UUID) (*models.ContextDocument, error)
}

// AuthHandler serves the authenticated user and their onboarding profile.
type AuthHandler struct {
	profiles ProfileStore
	docs     ContextInitializer
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(profiles ProfileStore, docs ContextInitializer, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{profiles: profiles, docs: docs, logger: logger}
}

// RegisterRoutes registers auth routes on the given router
// The router should already have the /api/v1/auth prefix
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
	r.HandleFunc("/me/profile", h.UpdateProfile).Methods("PUT")
}

// MeResponse is the current user with their profile, when onboarded.
type MeResponse struct {
	User    *models.User               `json:"user"`
	Profile *models.UserContextProfile `json:"profile,omitempty"`
}

// UpdateProfileRequest replaces the onboarding profile fields.
type UpdateProfileRequest struct {
	PreferredName     string   `json:"preferred_name" validate:"max=100"`
	Language          string   `json:"language" validate:"omitempty,max=16"`
	Timezone          string   `json:"timezone" validate:"omitempty,timezone"`
	Profession        string   `json:"profession" validate:"max=200"`
	CriticalArtifacts []string `json:"critical_artifacts" validate:"max=20,dive,max=100"`
	SocialPlatforms   []string `json:"social_platforms" validate:"max=20,dive,max=100"`
	NewsFocus         []string `json:"news_focus" validate:"max=20,dive,max=100"`
	HealthInterests   []string `json:"health_interests" validate:"max=20,dive,max=100"`
	SkincareSummary   string   `json:"skincare_summary" validate:"max=1000"`
	HealthSummary     string   `json:"health_summary" validate:"max=1000"`
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), user.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.logger.Error("profile_get_failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load profile")
		return
	}
	respondJSON(w, http.StatusOK, MeResponse{User: user, Profile: profile})
}

// UpdateProfile stores the profile and rebuilds the context document so the
// next voice note sees it.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lang := ""
	if req.Language != "" {
		if !language.Known(req.Language) {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Unsupported language: "+req.Language)
			return
		}
		lang = language.Normalize(req.Language)
	}

	profile := &models.UserContextProfile{
		UserID:            user.ID,
		PreferredName:     validation.SanitizeText(req.PreferredName),
		Language:          lang,
		Timezone:          req.Timezone,
		Profession:        validation.SanitizeText(req.Profession),
		CriticalArtifacts: validation.SanitizeTags(req.CriticalArtifacts),
		SocialPlatforms:   validation.SanitizeTags(req.SocialPlatforms),
		NewsFocus:         validation.SanitizeTags(req.NewsFocus),
		HealthInterests:   validation.SanitizeTags(req.HealthInterests),
		SkincareSummary:   validation.SanitizeText(req.SkincareSummary),
		HealthSummary:     validation.SanitizeText(req.HealthSummary),
	}
	ctx := r.Context()
	log := h.logger.With(zap.String("user_id", user.ID.String()))
	if err := h.profiles.UpsertProfile(ctx, profile); err != nil {
		log.Error("profile_upsert_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save profile")
		return
	}
	if _, err := h.docs.Init(ctx, user.ID); err != nil {
		log.Warn("context_init_failed", zap.Error(err))
	}
	log.Info("profile_updated")
	respondJSON(w, http.StatusOK, profile)
}
