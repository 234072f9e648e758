package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/portal/internal/auth"
	"github.com/JonMunkholm/portal/internal/logging"
	mw "github.com/JonMunkholm/portal/internal/web/middleware"
	"github.com/JonMunkholm/portal/internal/web/templates"
	"github.com/go-playground/validator/v10"
)

const (
	msgInvalidLogin = "Invalid username or password"
	msgFormExpired  = "Your form has expired. Please try again."
)

var formValidator = validator.New()

type loginForm struct {
	Username string `validate:"required,max=150"`
	Password string `validate:"required,max=128"`
}

// homeFor is where a principal lands after signing in.
func homeFor(p auth.Principal) string {
	if p.IsAdmin() {
		return "/admin/dashboard"
	}
	return "/student/dashboard"
}

func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// pageFor builds the common page data and consumes pending flashes.
func pageFor(w http.ResponseWriter, r *http.Request) templates.Page {
	page := templates.Page{
		Flashes:   takeFlashes(w, r),
		CSRFToken: mw.CSRFToken(r.Context()),
	}
	if p, ok := mw.PrincipalFrom(r.Context()); ok {
		page.Username = p.Username
	}
	return page
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	redirect(w, r, "/login")
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if p, ok := mw.PrincipalFrom(r.Context()); ok {
		redirect(w, r, homeFor(p))
		return
	}
	templates.Login(pageFor(w, r), "").Render(r.Context(), w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !mw.VerifyCSRF(r, r.PostFormValue(mw.CSRFFieldName)) {
		logging.FromContext(r.Context()).Warn("login rejected", "reason", errCSRF)
		addFlash(w, r, templates.FlashError, msgFormExpired)
		redirect(w, r, "/login")
		return
	}

	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := formValidator.Struct(form); err != nil {
		s.loginFailed(w, r)
		return
	}

	identity, err := s.authn.Authenticate(r.Context(), form.Username, form.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.loginFailed(w, r)
		return
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	token, expires, err := s.sessions.Issue(identity)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.Security.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if s.metrics != nil {
		s.metrics.ObserveLogin(true)
	}
	logging.FromContext(r.Context()).Info("login succeeded", "username", identity.Username, "role", identity.Role)
	addFlash(w, r, templates.FlashSuccess, "Login successful!")

	redirect(w, r, homeFor(auth.Principal{ID: identity.ID, Username: identity.Username, Role: identity.Role}))
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(false)
	}
	addFlash(w, r, templates.FlashError, msgInvalidLogin)
	redirect(w, r, "/login")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	addFlash(w, r, templates.FlashInfo, "You have been logged out.")
	redirect(w, r, "/login")
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// denyPage answers failed role checks on HTML routes.
func (s *Server) denyPage(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	switch {
	case p == nil:
		addFlash(w, r, templates.FlashInfo, "Please log in to access this page.")
		redirect(w, r, "/login")
	case p.IsStudent():
		addFlash(w, r, templates.FlashError, "Access denied. Admin privileges required.")
		redirect(w, r, homeFor(*p))
	default:
		redirect(w, r, homeFor(*p))
	}
}
