package request

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr without port", nil, "10.0.0.1:12345", "10.0.0.1"},
		{"remote addr ipv6", nil, "[::1]:8080", "::1"},
		{"remote addr bare", nil, "10.0.0.2", "10.0.0.2"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			got := ClientIP(r)
			if got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	t.Parallel()
	u := &models.User{ID: uuid.New(), Email: "a@b.c"}
	r := httptest.NewRequest("GET", "/", nil).WithContext(WithUser(context.Background(), u))
	if got := UserFromContext(r); got != u {
		t.Errorf("UserFromContext() = %p, want %p", got, u)
	}
}

func TestUserFromContext_NoUser(t *testing.T) {
	t.Parallel()
	if got := UserFromContext(httptest.NewRequest("GET", "/", nil)); got != nil {
		t.Errorf("UserFromContext() = %+v, want nil", got)
	}
}

func TestUserFromContext_WrongType(t *testing.T) {
	t.Parallel()
	ctx := context.WithValue(context.Background(), UserContextKey(), "not a user")
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	if got := UserFromContext(r); got != nil {
		t.Errorf("UserFromContext() = %+v, want nil when wrong type", got)
	}
}

func TestPage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query        string
		wantPage     int
		wantPageSize int
	}{
		{"", 1, 20},
		{"?page=3&page_size=50", 3, 50},
		{"?page=0&page_size=-1", 1, 20},
		{"?page=abc&page_size=1000", 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			page, size := Page(httptest.NewRequest("GET", "/"+tt.query, nil), 20, 100)
			if page != tt.wantPage || size != tt.wantPageSize {
				t.Errorf("Page() = %d, %d; want %d, %d", page, size, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestIntParam(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/?limit=7&big=900&bad=x", nil)
	if got := IntParam(r, "limit", 10, 50); got != 7 {
		t.Errorf("IntParam(limit) = %d", got)
	}
	if got := IntParam(r, "big", 10, 50); got != 50 {
		t.Errorf("IntParam(big) = %d", got)
	}
	if got := IntParam(r, "bad", 10, 50); got != 10 {
		t.Errorf("IntParam(bad) = %d", got)
	}
}
