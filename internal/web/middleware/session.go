package middleware

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/portal/internal/auth"
	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/logging"
)

type principalKey struct{}

type logSlotKey struct{}

// logSlot lets inner middleware name the user for the outer request log.
type logSlot struct {
	user string
}

func withLogSlot(r *http.Request) (*http.Request, *logSlot) {
	slot := &logSlot{}
	return r.WithContext(context.WithValue(r.Context(), logSlotKey{}, slot)), slot
}

// SessionParser verifies a session token.
type SessionParser interface {
	Parse(token string) (auth.Principal, error)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the signed-in principal, if any.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// Session resolves the session cookie into a principal on the request
// context. Requests without a valid cookie continue anonymously; a bad
// cookie is cleared.
func Session(sessions SessionParser, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := sessions.Parse(cookie.Value)
			if err != nil {
				logging.FromContext(r.Context()).Debug("session rejected", "error", err)
				http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logging.NewContext(ctx, logging.FromContext(ctx).With("user", p.Username))
			if slot, ok := ctx.Value(logSlotKey{}).(*logSlot); ok {
				slot.user = p.Username
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DenyFunc answers a request that failed a role check. p is nil for
// anonymous requests.
type DenyFunc func(w http.ResponseWriter, r *http.Request, p *auth.Principal)

// RequireRole passes requests whose principal has role and hands the rest
// to deny.
func RequireRole(role core.Role, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				deny(w, r, nil)
				return
			}
			if p.Role != role {
				logging.FromContext(r.Context()).Warn("access denied",
					"path", r.URL.Path,
					"role", p.Role,
					"required", role,
				)
				deny(w, r, &p)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
