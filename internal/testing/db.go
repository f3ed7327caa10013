// Package testing provides testing utilities and helpers for the allocator.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aristath/allocator/internal/database"
)

// NewTestDB creates a migrated snapshot database in a per-test temporary
// directory. The connection is closed when the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "snapshot.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshot",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}
