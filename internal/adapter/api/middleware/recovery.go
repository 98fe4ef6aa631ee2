package middleware

import (
	"log/slog"
	"net/http"
)

// Recovery is a middleware factory that turns a panic in a downstream
// handler into a 500 response instead of crashing the process, logging the
// panic value for diagnosis.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					// r.Pattern, not r.URL.Path: the latter carries a live
					// token on a panic mid-/webhook/{service}/{token} request.
					path := r.Pattern
					if path == "" {
						path = redactWebhookPath(r.URL.Path)
					}
					logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", path)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
