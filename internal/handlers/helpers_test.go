package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	ts, ok := body["timestamp"].(string)
	if !ok {
		t.Fatal("Expected timestamp in envelope")
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", ts, err)
	}
	return body
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	respondJSON(rr, http.StatusCreated, map[string]string{"summary": "Call the dentist"})

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["success"] != true {
		t.Error("Expected success true")
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["summary"] != "Call the dentist" {
		t.Errorf("Unexpected data %v", body["data"])
	}
}

func TestRespondResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		success     bool
		message     string
		wantMessage string
	}{
		{name: "success without message", success: true},
		{name: "failure keeps payload", success: false, message: "transcription failed", wantMessage: "transcription failed"},
		{name: "long message truncated", success: false, message: strings.Repeat("x", 300), wantMessage: strings.Repeat("x", maxErrorMessageLength) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			respondResult(rr, http.StatusUnprocessableEntity, tt.success, map[string]string{"runId": "01J"}, tt.message)

			body := decodeEnvelope(t, rr)
			if body["success"] != tt.success {
				t.Errorf("Expected success %v, got %v", tt.success, body["success"])
			}
			if _, ok := body["data"].(map[string]any); !ok {
				t.Error("Expected data to be present")
			}
			msg, hasMessage := body["message"]
			if tt.wantMessage == "" {
				if hasMessage {
					t.Errorf("Expected no message, got %v", msg)
				}
				return
			}
			if msg != tt.wantMessage {
				t.Errorf("Expected message of length %d, got %v", len(tt.wantMessage), msg)
			}
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	respondJSONError(rr, http.StatusUnsupportedMediaType, "Unsupported Media Type", "video/mp4 is not an audio format")

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status 415, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if body["success"] != false {
		t.Error("Expected success false")
	}
	if body["error"] != "Unsupported Media Type" {
		t.Errorf("Unexpected error %v", body["error"])
	}
	if _, ok := body["data"]; ok {
		t.Error("Expected no data on errors")
	}
}

type decodeProbe struct {
	Title string `json:"title" validate:"required,max=10"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		limit       int64
		wantOK      bool
		wantStatus  int
		wantMessage string
	}{
		{name: "valid", body: `{"title":"groceries"}`, wantOK: true},
		{name: "malformed", body: `{"title":`, wantStatus: http.StatusBadRequest, wantMessage: "Invalid request body"},
		{name: "unknown field", body: `{"title":"a","extra":1}`, wantStatus: http.StatusBadRequest, wantMessage: "Invalid request body"},
		{name: "validation names field and tag", body: `{"title":""}`, wantStatus: http.StatusBadRequest, wantMessage: "Validation failed: Title (required)"},
		{name: "body too large", body: `{"title":"groceries"}`, limit: 8, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				req.Body = http.MaxBytesReader(rr, req.Body, tt.limit)
			}

			var v decodeProbe
			ok := decodeJSON(rr, req, &v)
			if ok != tt.wantOK {
				t.Fatalf("decodeJSON() = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK {
				if v.Title != "groceries" {
					t.Errorf("Expected decoded title, got %q", v.Title)
				}
				return
			}
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			body := decodeEnvelope(t, rr)
			if tt.wantMessage != "" && body["message"] != tt.wantMessage {
				t.Errorf("Expected message %q, got %v", tt.wantMessage, body["message"])
			}
		})
	}
}

// newTestRequest builds a request with body encoded as JSON.
func newTestRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	return httptest.NewRequest(method, path, &buf)
}
