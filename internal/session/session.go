// Package session binds one editor surface to the persistence core and runs
// the document-switch protocol: flush the outgoing document before the
// incoming one is loaded, so no edit is lost and no stale write survives a
// switch.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/Xperiamol/FlashNote-sub001/internal/assets"
	"github.com/Xperiamol/FlashNote-sub001/internal/autosave"
	"github.com/Xperiamol/FlashNote-sub001/internal/config"
	"github.com/Xperiamol/FlashNote-sub001/internal/document"
	"github.com/Xperiamol/FlashNote-sub001/internal/store"
)

var (
	// ErrClosed is returned by operations on a torn-down session.
	ErrClosed = errors.New("session: closed")
	// ErrStaleBinding marks a snapshot whose editor content no longer
	// belongs to the document a save task was created for.
	ErrStaleBinding = errors.New("session: content does not belong to bound document")
)

// Editor is the surface the session drives. Implementations supply the live
// in-memory content and render loaded content. Editors read dirty state via
// Session.Dirty; they never own it.
type Editor interface {
	// CurrentContent returns the live content of the loaded document.
	CurrentContent(ctx context.Context) (*document.Document, error)
	// SetContent replaces the loaded content after a switch. broken lists
	// asset ids whose payloads failed to resolve.
	SetContent(ctx context.Context, doc *document.Document, broken []string) error
}

// Session owns the active-document binding for one editor surface.
type Session struct {
	editor Editor
	store  store.Store
	assets assets.Store
	sched  *autosave.Scheduler
	cfg    config.Config
	log    *slog.Logger

	// mu serializes Switch, Create and Close. Holding it across the whole
	// flush-then-load sequence is what serializes a switch back to a
	// document whose flush is still outstanding.
	mu       sync.Mutex
	activeID string
	closed   bool
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets debounce delays and directories.
func WithConfig(cfg config.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// New creates a session with no active document; call Switch or Create to
// load one.
func New(editor Editor, st store.Store, as assets.Store, opts ...Option) *Session {
	s := &Session{
		editor: editor,
		store:  st,
		assets: as,
		cfg:    config.Default(),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.sched = autosave.New(st,
		autosave.WithAssetStore(as),
		autosave.WithDelay(s.cfg.NoteDebounce),
		autosave.WithLogger(s.log),
	)
	return s
}

// ActiveID returns the id of the loaded document, or "".
func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Dirty reports whether the loaded document has unpersisted edits.
func (s *Session) Dirty(ctx context.Context) (bool, error) {
	return s.sched.Dirty(ctx)
}

// OnChange is the editor's change notification: it captures the current
// content and (re)arms the debounced save.
func (s *Session) OnChange(ctx context.Context) error {
	return s.sched.ScheduleSave(ctx)
}

// SaveNow flushes the loaded document immediately.
func (s *Session) SaveNow(ctx context.Context) error {
	return s.sched.SaveNow(ctx)
}

// Switch makes newID the active document. The outgoing document is flushed
// to durable storage first; a flush failure blocks the switch and the editor
// stays on the outgoing document with its edits intact.
func (s *Session) Switch(ctx context.Context, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.activeID != "" {
		if err := s.sched.SaveNow(ctx); err != nil {
			return fmt.Errorf("session: flush %s: %w", s.activeID, err)
		}
	}
	return s.loadLocked(ctx, newID)
}

// Create persists a new document and makes it active, flushing any
// previously active document first.
func (s *Session) Create(ctx context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if doc.ID == "" {
		return errors.New("session: document id is required")
	}

	if s.activeID != "" {
		if err := s.sched.SaveNow(ctx); err != nil {
			return fmt.Errorf("session: flush %s: %w", s.activeID, err)
		}
	}

	canonical, err := document.Canonical(doc)
	if err != nil {
		return fmt.Errorf("session: serialize %s: %w", doc.ID, err)
	}
	if doc.Kind == document.KindStructured && doc.Scene != nil && len(doc.Scene.Files) > 0 {
		if _, err := assets.Externalize(ctx, s.assets, doc.Scene.Files); err != nil {
			return fmt.Errorf("session: create %s: %w", doc.ID, err)
		}
	}
	if _, err := s.store.Write(ctx, doc.ID, doc.Kind, doc.Title, canonical); err != nil {
		return fmt.Errorf("session: create %s: %w", doc.ID, err)
	}
	return s.loadLocked(ctx, doc.ID)
}

// Close tears the session down: the active document is flushed first, and
// teardown is not finished until that flush completes or is reported failed.
// The session is closed either way; a flush failure is returned so the
// caller can surface it.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var flushErr error
	if s.activeID != "" {
		flushErr = s.sched.SaveNow(ctx)
	}
	s.sched.CancelSave()
	outgoing := s.activeID
	s.activeID = ""
	s.closed = true

	if flushErr != nil {
		return fmt.Errorf("session: teardown flush %s: %w", outgoing, flushErr)
	}
	return nil
}

// loadLocked fetches id's last-persisted content, resolves assets for
// structured documents, hands the content to the editor, and rebinds the
// scheduler. Caller holds s.mu.
func (s *Session) loadLocked(ctx context.Context, id string) error {
	stored, err := s.store.Read(ctx, id)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", id, err)
	}

	doc := &document.Document{ID: id, Kind: stored.Kind, Title: stored.Title}
	var broken []string

	switch stored.Kind {
	case document.KindPlain:
		doc.Text = stored.Canonical
	case document.KindStructured:
		scene, refs, err := document.ParseScene(stored.Canonical)
		if err != nil {
			return fmt.Errorf("session: load %s: %w", id, err)
		}
		if len(refs) > 0 {
			resolved := assets.Resolve(ctx, s.assets, refs)
			scene.Files = make(map[string]document.Payload, len(resolved))
			for assetID, r := range resolved {
				if r.Broken() {
					broken = append(broken, assetID)
					s.log.Warn("asset failed to resolve",
						"document", id, "asset", assetID, "error", r.Err)
					// Keep a payload-less marker so the reference is not
					// silently dropped by the next save.
					scene.Files[assetID] = document.Payload{MimeType: r.Ref.MimeType}
					continue
				}
				scene.Files[assetID] = document.Payload{MimeType: r.Ref.MimeType, Data: r.Data}
			}
			sort.Strings(broken)
		}
		doc.Scene = scene
	default:
		return fmt.Errorf("session: load %s: unknown kind %q", id, stored.Kind)
	}

	if err := s.editor.SetContent(ctx, doc, broken); err != nil {
		return fmt.Errorf("session: set content %s: %w", id, err)
	}

	delay := s.cfg.NoteDebounce
	if stored.Kind == document.KindStructured {
		delay = s.cfg.SceneDebounce
	}
	s.sched.SetDelay(delay)
	s.sched.Rebind(id, s.snapshotFn(id), stored.Canonical)
	s.activeID = id

	s.log.Debug("document loaded", "document", id, "kind", string(stored.Kind), "broken_assets", len(broken))
	return nil
}

// snapshotFn returns a capture function bound to docID at rebind time. The
// id is fixed in the closure, never re-read from session state, so a save
// task can never pick up content belonging to a later active document.
func (s *Session) snapshotFn(docID string) autosave.SnapshotFunc {
	return func(ctx context.Context) (autosave.Snapshot, error) {
		doc, err := s.editor.CurrentContent(ctx)
		if err != nil {
			return autosave.Snapshot{}, err
		}
		if doc.ID != docID {
			return autosave.Snapshot{}, fmt.Errorf("%w: editor holds %s, task bound to %s",
				ErrStaleBinding, doc.ID, docID)
		}
		canonical, err := document.Canonical(doc)
		if err != nil {
			return autosave.Snapshot{}, err
		}
		snap := autosave.Snapshot{Kind: doc.Kind, Title: doc.Title, Canonical: canonical}
		if doc.Kind == document.KindStructured && doc.Scene != nil && len(doc.Scene.Files) > 0 {
			snap.Files = maps.Clone(doc.Scene.Files)
		}
		return snap, nil
	}
}
