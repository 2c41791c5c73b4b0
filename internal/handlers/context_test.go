package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/smart-voice/internal/models"
)

func contextRouter(h *ContextHandler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/api/v1/context").Subrouter())
	return r
}

func TestContextHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		currentErr  error
		teardownErr error
		wantStatus  int
	}{
		{name: "get", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "get missing", method: http.MethodGet, currentErr: fmt.Errorf("failed: %w", sql.ErrNoRows), wantStatus: http.StatusNotFound},
		{name: "get failure", method: http.MethodGet, currentErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
		{name: "rebuild", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "delete", method: http.MethodDelete, wantStatus: http.StatusNoContent},
		{name: "delete failure", method: http.MethodDelete, teardownErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			docs := &mockContextManager{
				currentFunc: func(_ context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
					if tt.currentErr != nil {
						return nil, tt.currentErr
					}
					return &models.ContextDocument{UserID: userID, Content: "# Context"}, nil
				},
				teardownFunc: func(context.Context, uuid.UUID) error { return tt.teardownErr },
			}
			h := NewContextHandler(docs, nil)

			rec := httptest.NewRecorder()
			contextRouter(h).ServeHTTP(rec, withUser(httptest.NewRequest(tt.method, "/api/v1/context", nil), testUser()))

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.method == http.MethodPost && docs.inits != 1 {
				t.Errorf("Expected one rebuild, got %d", docs.inits)
			}
		})
	}
}
