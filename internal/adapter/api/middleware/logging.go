package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// responseWriter is a wrapper that captures the HTTP status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logging is a middleware factory that logs HTTP requests. It wraps the
// whole mux, so {service}/{token} path values (and r.Pattern) aren't
// populated until http.ServeMux has matched a route inside next.ServeHTTP —
// GenHook's webhook and admin config-lookup routes both bind those names, so
// the log line carries them (never with a full token, only its length)
// whenever a matched route set one, and is silent on routes that don't (e.g.
// /health).
//
// The logged path is r.Pattern, the matched route template (e.g.
// "POST /webhook/{service}/{token}"), never r.URL.Path: the latter is the
// literal request-target, which for the webhook route carries the plaintext
// token.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			// r.Pattern is the matched route template ("POST
			// /webhook/{service}/{token}"), never the literal request-target:
			// r.URL.Path for that route would carry the plaintext token. A
			// request that never matched a route (so r.Pattern is unset)
			// still can't leak a token that was in its target: any
			// unmatched /webhook/... path is redacted the same way.
			path := r.Pattern
			if path == "" {
				path = redactWebhookPath(r.URL.Path)
			}

			fields := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", path,
				"remote_addr", r.RemoteAddr,
				"status", rw.statusCode,
				"duration_ms", duration.Milliseconds(),
			}
			if service := r.PathValue("service"); service != "" {
				fields = append(fields, "service", service)
			}
			if token := r.PathValue("token"); token != "" {
				fields = append(fields, "token_len", len(token))
			}

			logger.Info("handled request", fields...)
		})
	}
}

// redactWebhookPath replaces the token segment of an unmatched
// /webhook/{service}/{token} request-target with a placeholder, so a
// malformed or unrecognised webhook URL never puts a live token into a log
// line via r.URL.Path.
func redactWebhookPath(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(parts) == 3 && parts[0] == "webhook" {
		return "/webhook/" + parts[1] + "/<redacted>"
	}
	return path
}
