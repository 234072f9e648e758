package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode)
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is rendered as JSON for API clients, HTML otherwise

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/portal/internal/auth"
	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/logging"
	"github.com/JonMunkholm/portal/internal/web/templates"
)

var (
	errNoFile       = errors.New("no file provided")
	errNotCSV       = errors.New("csv files only")
	errAccessDenied = errors.New("access denied")
	errRateLimited  = errors.New("rate limit exceeded")
	errLoginNeeded  = errors.New("login required")
	errCSRF         = errors.New("invalid csrf token")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error server-side and returns a mapped
// message in the format the client expects.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		writeJSON(w, statusCode, ErrorResponse{
			Error:   userMsg.Message,
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	templates.ErrorPage(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w)
}

// statusFor picks the response status for an ImportBatch or lookup error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrMalformedBatch), errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, errNoFile), errors.Is(err, errNotCSV):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, errLoginNeeded):
		return http.StatusUnauthorized
	case errors.Is(err, errAccessDenied), errors.Is(err, errCSRF):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
}

// denyAPI answers failed role checks on /api.
func (s *Server) denyAPI(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if p == nil {
		s.respondError(w, r, errLoginNeeded, http.StatusUnauthorized)
		return
	}
	s.respondError(w, r, errAccessDenied, http.StatusForbidden)
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
