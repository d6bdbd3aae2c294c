package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// LogRequests is a tiny HTTP middleware to log method, path, latency.
// Used on surfaces mounted outside the chi middleware stack (static uploads).
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}
