// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/portal/internal/logging"
)

// RequestObserver is told about every finished request.
type RequestObserver func(method string, status int, elapsed time.Duration)

// Logger is an HTTP middleware that logs one structured line per request
// and reports it to observe, which may be nil.
//
// Log fields:
//   - method, path, status
//   - duration_ms: request processing time in milliseconds
//   - ip: client address after TrustedRealIP
//   - user_agent
//
// request_id and user are added by the context logger.
func Logger(observe RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			// Handlers further down may swap the request context; the
			// principal they attach is visible through the shared slot.
			r, slot := withLogSlot(r)

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			if observe != nil {
				observe(r.Method, ww.status, elapsed)
			}

			logger := logging.FromContext(r.Context())
			if slot.user != "" {
				logger = logger.With("user", slot.user)
			}

			level := logger.Info
			if ww.status >= http.StatusInternalServerError {
				level = logger.Error
			}
			level("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", elapsed.Milliseconds(),
				"ip", ClientIP(r),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap provides access to the underlying ResponseWriter for
// http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
