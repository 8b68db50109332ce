package assets

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Xperiamol/FlashNote-sub001/internal/document"
)

// DiskStore keeps payload bytes as files under an assets directory and the
// per-asset metadata (mime type, size, checksum, creation time) in the
// assets table.
type DiskStore struct {
	db  *sql.DB
	dir string
}

// NewDiskStore creates the assets directory if needed.
func NewDiskStore(db *sql.DB, dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("assets: create dir: %w", err)
	}
	return &DiskStore{db: db, dir: dir}, nil
}

// NewAssetID returns a fresh asset identifier.
func NewAssetID() string {
	return "ast_" + uuid.NewString()
}

// Put stores payload under id. If a row for id already exists the original
// reference is returned and nothing is rewritten.
func (s *DiskStore) Put(ctx context.Context, id string, payload document.Payload) (document.AssetReference, error) {
	if id == "" {
		return document.AssetReference{}, fmt.Errorf("assets: asset id is required")
	}

	if ref, ok, err := s.lookup(ctx, id); err != nil {
		return document.AssetReference{}, err
	} else if ok {
		return ref, nil
	}

	// Write to a temp file first so a crashed put never leaves a partial
	// payload at the final path.
	tmp, err := os.CreateTemp(s.dir, "put-*")
	if err != nil {
		return document.AssetReference{}, fmt.Errorf("assets: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return document.AssetReference{}, fmt.Errorf("assets: write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return document.AssetReference{}, fmt.Errorf("assets: close payload: %w", err)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return document.AssetReference{}, fmt.Errorf("assets: place payload: %w", err)
	}

	now := time.Now()
	sum := sha256.Sum256(payload.Data)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (id, mime_type, size_bytes, sha256, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, payload.MimeType, len(payload.Data), hex.EncodeToString(sum[:]), now.Unix())
	if err != nil {
		return document.AssetReference{}, fmt.Errorf("assets: insert metadata: %w", err)
	}

	// Re-read so a concurrent Put for the same id yields one consistent
	// reference (whichever row landed first).
	ref, ok, err := s.lookup(ctx, id)
	if err != nil {
		return document.AssetReference{}, err
	}
	if !ok {
		return document.AssetReference{}, fmt.Errorf("assets: metadata row missing after put: %s", id)
	}
	return ref, nil
}

// Get returns the payload bytes for id, or ErrNotFound.
func (s *DiskStore) Get(ctx context.Context, id string) ([]byte, error) {
	if _, ok, err := s.lookup(ctx, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s (payload file missing)", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("assets: read payload: %w", err)
	}
	return data, nil
}

// Has reports whether a metadata row exists for id.
func (s *DiskStore) Has(ctx context.Context, id string) (bool, error) {
	_, ok, err := s.lookup(ctx, id)
	return ok, err
}

func (s *DiskStore) lookup(ctx context.Context, id string) (document.AssetReference, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT mime_type, created_at FROM assets WHERE id = ?
	`, id)
	var mime string
	var createdAt int64
	err := row.Scan(&mime, &createdAt)
	if err == sql.ErrNoRows {
		return document.AssetReference{}, false, nil
	}
	if err != nil {
		return document.AssetReference{}, false, fmt.Errorf("assets: query metadata: %w", err)
	}
	return document.AssetReference{
		AssetID:   id,
		MimeType:  mime,
		CreatedAt: time.Unix(createdAt, 0),
	}, true, nil
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, id)
}
