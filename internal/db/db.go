package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Xperiamol/FlashNote-sub001/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the embedded schema SQL, so tests can apply it to
// in-memory databases.
func Schema() string {
	return schemaSQL
}

// Init creates the data directory and database file and applies the schema.
func Init(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("db: create data dir: %w", err)
	}

	database, err := Open(path)
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := database.Exec(schemaSQL); err != nil {
		return fmt.Errorf("db: create schema: %w", err)
	}
	return nil
}

// Open opens the database at path with the production pragmas applied.
func Open(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("db: %s: %w", p, err)
		}
	}
	return database, nil
}

// DefaultPath returns the path to the database file under the data directory.
func DefaultPath() (string, error) {
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "flashnote.db"), nil
}
