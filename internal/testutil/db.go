package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codr1/tidyquote/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// NewSeededDB creates a temporary database holding the default catalogue.
func NewSeededDB(t *testing.T) *db.DB {
	t.Helper()

	database := NewTestDB(t)
	cat, err := db.LoadSeedCatalogue()
	if err != nil {
		t.Fatalf("load seed catalogue: %v", err)
	}
	if err := database.ApplySeed(context.Background(), cat); err != nil {
		t.Fatalf("apply seed catalogue: %v", err)
	}
	return database
}
