// Package store provides the persistence backends behind core.Store.
//
// Postgres is the production backend; its schema is managed by the
// versioned migrations in internal/database. SQLite (through gorm) serves
// local development and tests and migrates itself when opened.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/database"
)

// Kind names a storage backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// KindOf reports which backend databaseURL selects.
func KindOf(databaseURL string) (Kind, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return KindPostgres, nil
	case strings.HasPrefix(databaseURL, "sqlite://"), strings.HasPrefix(databaseURL, "file:"):
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database URL %q: want postgres://, sqlite:// or file:", redact(databaseURL))
	}
}

// Open connects to the store named by databaseURL.
func Open(ctx context.Context, databaseURL string, opts PoolOptions) (core.Store, error) {
	kind, err := KindOf(databaseURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPostgres:
		return OpenPostgres(ctx, databaseURL, opts)
	default:
		return OpenSQLite(ctx, sqliteDSN(databaseURL))
	}
}

// Migrate brings the schema at databaseURL up to date and returns a short
// description of the result.
func Migrate(ctx context.Context, databaseURL string) (string, error) {
	kind, err := KindOf(databaseURL)
	if err != nil {
		return "", err
	}

	if kind == KindPostgres {
		version, err := database.Migrate(databaseURL)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("postgres schema at version %d", version), nil
	}

	s, err := OpenSQLite(ctx, sqliteDSN(databaseURL))
	if err != nil {
		return "", err
	}
	if err := s.Close(); err != nil {
		return "", err
	}
	return "sqlite schema auto-migrated", nil
}

// sqliteDSN strips the sqlite:// prefix; file: DSNs pass through.
func sqliteDSN(databaseURL string) string {
	return strings.TrimPrefix(databaseURL, "sqlite://")
}

// redact hides credentials in a connection string for error messages.
func redact(databaseURL string) string {
	at := strings.LastIndex(databaseURL, "@")
	scheme := strings.Index(databaseURL, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return databaseURL
	}
	return databaseURL[:scheme+3] + "***" + databaseURL[at:]
}
