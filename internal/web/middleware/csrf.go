package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
)

// CSRFFieldName is the form field HTML forms carry the token in.
const CSRFFieldName = "csrf_token"

type csrfKey struct{}

// CSRFCookie makes sure every client holds a random token cookie and makes
// the token available through CSRFToken. Forms echo it back in
// CSRFFieldName and handlers check it with VerifyCSRF.
func CSRFCookie(name string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(name); err == nil && isUUID(c.Value) {
				token = c.Value
			} else {
				token = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

// CSRFToken returns the request's token, or "" outside CSRFCookie.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// VerifyCSRF reports whether submitted matches the request's cookie token.
func VerifyCSRF(r *http.Request, submitted string) bool {
	want := CSRFToken(r.Context())
	if want == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(submitted)) == 1
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
