package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/logging"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// IdentityFinder looks identities up by username.
type IdentityFinder interface {
	GetIdentityByUsername(ctx context.Context, username string) (core.Identity, error)
}

// Authenticator checks a username and password against the identity store.
type Authenticator struct {
	identities IdentityFinder
	hasher     BcryptHasher
	dummyHash  string
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(identities IdentityFinder, hasher BcryptHasher) *Authenticator {
	// Compared against when the username is unknown so both paths cost one
	// bcrypt comparison.
	dummy, _ := hasher.Hash("portal-unknown-user")
	return &Authenticator{
		identities: identities,
		hasher:     hasher,
		dummyHash:  dummy,
	}
}

// Authenticate returns the identity for username when password matches.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (core.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return core.Identity{}, ErrInvalidCredentials
	}

	identity, err := a.identities.GetIdentityByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		a.hasher.Compare(a.dummyHash, password)
		logging.FromContext(ctx).Info("login failed", "username", username, "reason", "unknown user")
		return core.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.Identity{}, err
	}

	if !a.hasher.Compare(identity.PasswordHash, password) {
		logging.FromContext(ctx).Info("login failed", "username", username, "reason", "wrong password")
		return core.Identity{}, ErrInvalidCredentials
	}

	return identity, nil
}
