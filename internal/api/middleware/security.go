package middleware

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/hearme/signbridge/internal/metrics"
)

// responseHeaders go on every response. The API serves only JSON, so the
// content policy forbids everything.
var responseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// rejectedInput lists fragments that never appear in a room id or route.
var rejectedInput = []string{"..", "//", "<", ">", "javascript:", "vbscript:", "%00"}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range responseHeaders {
			w.Header().Set(h[0], h[1])
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize caps request bodies at maxBytes. Declared lengths are refused
// up front; chunked bodies fail while the handler decodes them.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				metrics.BlockedRequests.WithLabelValues("body_too_large").Inc()
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateRequest rejects non-JSON bodies and paths or queries carrying
// traversal or markup.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 && !isJSON(r.Header.Get("Content-Type")) {
			metrics.BlockedRequests.WithLabelValues("content_type").Inc()
			writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}
		if hasRejectedInput(r.URL.Path) || hasRejectedInput(r.URL.RawQuery) {
			metrics.BlockedRequests.WithLabelValues("suspicious_input").Inc()
			writeJSONError(w, http.StatusBadRequest, "invalid request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func hasRejectedInput(s string) bool {
	lower := strings.ToLower(s)
	for _, frag := range rejectedInput {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
