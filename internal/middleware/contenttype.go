package middleware

import (
	"mime"
	"net/http"
	"strings"
)

// ContentType rejects POST, PATCH and PUT requests whose media type is not
// one of allowed. With no arguments only application/json is accepted.
func ContentType(allowed ...string) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		allowed = []string{"application/json"}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPatch && r.Method != http.MethodPut {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				respondError(w, http.StatusBadRequest, "Content-Type header is required")
				return
			}
			mediaType, _, err := mime.ParseMediaType(contentType)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Malformed Content-Type header")
				return
			}
			for _, a := range allowed {
				if strings.EqualFold(mediaType, a) {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusUnsupportedMediaType, "Content-Type must be one of: "+strings.Join(allowed, ", "))
		})
	}
}
