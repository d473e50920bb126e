package testutil

import (
	"testing"

	"updater/internal/database"
	"updater/internal/updater"
)

// NewTestStore creates a new in-memory SQLite store with the schema applied.
// The store is closed when the test completes.
func NewTestStore(t *testing.T) updater.Store {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
