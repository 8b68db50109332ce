package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Xperiamol/FlashNote-sub001/internal/document"
)

// SQLiteStore persists documents in the documents table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Write upserts the document's canonical content inside one transaction.
// If the stored content hash matches, nothing is written and the result is
// marked Skipped.
func (s *SQLiteStore) Write(ctx context.Context, id string, kind document.Kind, title, canonical string) (WriteResult, error) {
	if id == "" {
		return WriteResult{}, errors.New("store: document id is required")
	}
	if !kind.Valid() {
		return WriteResult{}, fmt.Errorf("store: invalid kind %q", kind)
	}

	contentHash := document.Hash(canonical)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WriteResult{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var previousHash sql.NullString
	row := tx.QueryRowContext(ctx, `
		SELECT content_hash FROM documents WHERE id = ?
	`, id)
	if err := row.Scan(&previousHash); err != nil && err != sql.ErrNoRows {
		return WriteResult{}, fmt.Errorf("store: query head: %w", err)
	}

	if previousHash.Valid && previousHash.String == contentHash {
		return WriteResult{
			DocumentID:  id,
			ContentHash: contentHash,
			Skipped:     true,
		}, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, kind, title, content, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`, id, string(kind), nullIfEmpty(title), canonical, contentHash, now.Unix(), now.Unix())
	if err != nil {
		return WriteResult{}, fmt.Errorf("store: upsert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{}, fmt.Errorf("store: commit: %w", err)
	}

	return WriteResult{
		DocumentID:  id,
		ContentHash: contentHash,
		Created:     !previousHash.Valid,
		Updated:     previousHash.Valid,
		UpdatedAt:   now,
	}, nil
}

// Read returns the last-persisted state for id, or ErrNotFound.
func (s *SQLiteStore) Read(ctx context.Context, id string) (Stored, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, title, content, content_hash, updated_at
		FROM documents
		WHERE id = ?
	`, id)

	var st Stored
	var kind string
	var title sql.NullString
	var updatedAt int64
	err := row.Scan(&st.DocumentID, &kind, &title, &st.Canonical, &st.ContentHash, &updatedAt)
	if err == sql.ErrNoRows {
		return Stored{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Stored{}, fmt.Errorf("store: read document: %w", err)
	}

	st.Kind = document.Kind(kind)
	if title.Valid {
		st.Title = title.String
	}
	st.UpdatedAt = time.Unix(updatedAt, 0)
	return st, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
