package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
)

func patternRouter(h *PatternHandler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/api/v1/patterns").Subrouter())
	return r
}

func TestPatternHandler_ListPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantType   models.PatternType
	}{
		{name: "all types", wantStatus: http.StatusOK},
		{name: "one type", query: "?type=timing", wantStatus: http.StatusOK, wantType: models.PatternTypeTiming},
		{name: "unknown type", query: "?type=mood", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotType models.PatternType
			store := &mockPatternLister{listFunc: func(_ context.Context, userID uuid.UUID, pt models.PatternType, _ int) ([]*models.BehavioralPattern, error) {
				gotType = pt
				return []*models.BehavioralPattern{{
					ID:              uuid.New(),
					UserID:          userID,
					PatternType:     models.PatternTypeCategory,
					Signature:       "category:finance",
					PatternData:     map[string]any{"category": "finance"},
					Frequency:       4,
					ConfidenceScore: 0.4,
				}}, nil
			}}
			h := NewPatternHandler(store, &mockSuggester{}, nil)

			rec := httptest.NewRecorder()
			patternRouter(h).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/patterns"+tt.query, nil), testUser()))

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if gotType != tt.wantType {
				t.Errorf("Expected type filter %q, got %q", tt.wantType, gotType)
			}
			data, _ := decodeBody(t, rec)["data"].(map[string]any)
			list, _ := data["patterns"].([]any)
			if len(list) != 1 {
				t.Fatalf("Expected one pattern, got %v", data["patterns"])
			}
			first, _ := list[0].(map[string]any)
			if first["signature"] != "category:finance" || first["description"] == "" {
				t.Errorf("Expected flattened pattern with description, got %v", first)
			}
		})
	}
}

func TestPatternHandler_Suggest(t *testing.T) {
	t.Parallel()

	var got patterns.Draft
	advisor := &mockSuggester{suggestFunc: func(_ context.Context, _ uuid.UUID, d patterns.Draft) (*patterns.Suggestion, error) {
		got = d
		return &patterns.Suggestion{Category: &patterns.Suggested{Value: "finance", Score: 0.8}}, nil
	}}
	h := NewPatternHandler(&mockPatternLister{}, advisor, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patterns/suggestions?title=Pay+rent&tags=home,%20Home,bills", nil)
	patternRouter(h).ServeHTTP(rec, withUser(req, testUser()))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got.Title != "Pay rent" {
		t.Errorf("Expected title 'Pay rent', got %q", got.Title)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Expected de-duplicated tags, got %v", got.Tags)
	}

	rec = httptest.NewRecorder()
	patternRouter(h).ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/patterns/suggestions", nil), testUser()))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without title, got %d", rec.Code)
	}
}
