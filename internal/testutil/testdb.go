package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/Xperiamol/FlashNote-sub001/internal/db"
)

// OpenTestDB creates an in-memory SQLite DB and applies the flashnote schema.
// MaxOpenConns is pinned to 1 so every query sees the same ":memory:"
// database.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	database.SetMaxOpenConns(1)

	_, _ = database.Exec("PRAGMA foreign_keys = ON")

	if _, err := database.Exec(db.Schema()); err != nil {
		database.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
