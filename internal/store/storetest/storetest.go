// Package storetest provides throwaway stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/JonMunkholm/portal/internal/store"
	"github.com/google/uuid"
)

// NewSQLite returns an empty in-memory SQLite store private to t. The store
// is closed when the test ends.
func NewSQLite(t testing.TB) *store.SQLite {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	s, err := store.OpenSQLite(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// PlainHasher stores passwords unhashed. It keeps reconciliation tests fast.
type PlainHasher struct{}

func (PlainHasher) Hash(password string) (string, error) {
	return "plain:" + password, nil
}
