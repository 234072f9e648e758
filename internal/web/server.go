// Package web provides the HTTP server and handlers for the results portal.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/portal/internal/auth"
	"github.com/JonMunkholm/portal/internal/config"
	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/metrics"
	mw "github.com/JonMunkholm/portal/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// uploadOverhead is the multipart framing allowed on top of the file limit.
const uploadOverhead = 1 << 20

const csrfCookieName = "portal_csrf"

// Server is the HTTP server for the results portal.
type Server struct {
	cfg      *config.Config
	service  *core.Service
	authn    *auth.Authenticator
	sessions *auth.Sessions
	metrics  *metrics.Metrics // nil disables /metrics
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server. m may be nil.
func NewServer(cfg *config.Config, service *core.Service, authn *auth.Authenticator, sessions *auth.Sessions, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		authn:    authn,
		sessions: sessions,
		metrics:  m,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	var observe mw.RequestObserver
	if s.metrics != nil {
		observe = s.metrics.ObserveRequest
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger(observe))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(mw.SecurityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.Middleware(s.rateLimited))
	}

	s.router.Use(mw.Session(s.sessions, auth.SessionCookieName))
	s.router.Use(mw.CSRFCookie(csrfCookieName, s.cfg.Security.CookieSecure))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	requestTimeout := middleware.Timeout(s.cfg.Server.RequestTimeout)
	// Uploads may queue for the gate and then reconcile.
	uploadTimeout := middleware.Timeout(s.cfg.Upload.MaxWaitTime + s.cfg.Upload.Timeout)

	uploadLimit := s.limit(s.cfg.Rate.UploadLimit)
	loginLimit := s.limit(s.cfg.Rate.LoginLimit)

	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(requestTimeout)

		r.Get("/", s.handleIndex)
		r.Get("/login", s.handleLoginForm)
		r.With(loginLimit).Post("/login", s.handleLogin)
		r.Get("/logout", s.handleLogout)
		r.Post("/logout", s.handleLogout)

		r.With(mw.RequireRole(core.RoleAdmin, s.denyPage)).Get("/admin/dashboard", s.handleAdminDashboard)
		r.With(mw.RequireRole(core.RoleStudent, s.denyPage)).Get("/student/dashboard", s.handleStudentDashboard)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(uploadTimeout, uploadLimit, mw.RequireRole(core.RoleAdmin, s.denyPage))
		r.Post("/admin/upload", s.handleAdminUpload)
	})

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		if origins := s.cfg.Server.AllowedOrigins; len(origins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   origins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}

		r.With(requestTimeout, mw.RequireRole(core.RoleAdmin, s.denyAPI)).Get("/stats", s.handleAPIStats)
		r.With(requestTimeout, mw.RequireRole(core.RoleStudent, s.denyAPI)).Get("/me/results", s.handleAPIMyResults)
		r.With(uploadTimeout, uploadLimit, mw.RequireRole(core.RoleAdmin, s.denyAPI)).Post("/batches", s.handleAPIImportBatch)
	})
}

// limit returns a per-route limiter, or a pass-through when rate limiting
// is disabled.
func (s *Server) limit(perMinute int) func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled || perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw.NewRateLimiter(perMinute, time.Minute).Middleware(s.rateLimited)
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight ones and then for
// any batch still holding the upload gate.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.service.Limiter().WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Store().Ping(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uploads": s.service.Limiter().Status(),
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
