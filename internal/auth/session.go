package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "portal_session"

// DefaultSessionTTL is used when Sessions is created with a zero TTL.
const DefaultSessionTTL = 12 * time.Hour

const issuer = "results-portal"

// ErrInvalidSession is returned for a missing, expired or tampered token.
var ErrInvalidSession = errors.New("invalid session")

// Claims are the JWT claims of a portal session.
type Claims struct {
	IdentityID int64  `json:"identity_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the signed-in identity as recorded in the session.
type Principal struct {
	ID       int64
	Username string
	Role     core.Role
}

func (p Principal) IsAdmin() bool   { return p.Role == core.RoleAdmin }
func (p Principal) IsStudent() bool { return p.Role == core.RoleStudent }

// Sessions issues and verifies session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a token issuer signing with secret.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns how long issued tokens stay valid.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for identity and returns it with its expiry.
func (s *Sessions) Issue(identity core.Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		IdentityID: identity.ID,
		Username:   identity.Username,
		Role:       string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(identity.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies token and returns the principal it names.
func (s *Sessions) Parse(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrInvalidSession
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	role, err := core.ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	return Principal{ID: claims.IdentityID, Username: claims.Username, Role: role}, nil
}
