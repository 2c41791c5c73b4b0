package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout (30 seconds)
	DefaultRequestTimeout = 30 * time.Second
	// VoiceRequestTimeout bounds the synchronous pipeline window of voice routes.
	VoiceRequestTimeout = 90 * time.Second
)

// Timeout answers 503 when a handler exceeds timeout. The handler's request
// context is cancelled at the same moment.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"success":false,"error":"Request Timeout"}`)
	}
}
