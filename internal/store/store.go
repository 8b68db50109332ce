// Package store persists canonical document content. The write path is
// hash-compared: writing content identical to what is already stored is a
// reported no-op, not a second write.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Xperiamol/FlashNote-sub001/internal/document"
)

// ErrNotFound is returned by Read for an unknown document id.
var ErrNotFound = errors.New("store: document not found")

// WriteResult reports how a write was applied.
type WriteResult struct {
	DocumentID  string
	ContentHash string
	Created     bool
	Updated     bool
	Skipped     bool
	UpdatedAt   time.Time
}

// Stored is a document's last-persisted state as read back from storage.
type Stored struct {
	DocumentID  string
	Kind        document.Kind
	Title       string
	Canonical   string
	ContentHash string
	UpdatedAt   time.Time
}

// Writer persists canonical content. A write either fully lands or reports
// an error; readers never observe a partial document.
type Writer interface {
	Write(ctx context.Context, id string, kind document.Kind, title, canonical string) (WriteResult, error)
}

// Reader loads a document's last-persisted state.
type Reader interface {
	Read(ctx context.Context, id string) (Stored, error)
}

// Store combines the read and write halves of the storage backend.
type Store interface {
	Writer
	Reader
}
