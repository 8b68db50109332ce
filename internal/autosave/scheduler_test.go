package autosave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Xperiamol/FlashNote-sub001/internal/autosave"
	"github.com/Xperiamol/FlashNote-sub001/internal/document"
	"github.com/Xperiamol/FlashNote-sub001/internal/store"
)

type write struct {
	id        string
	canonical string
}

// recordingWriter counts writes and can block or fail on demand.
type recordingWriter struct {
	mu          sync.Mutex
	writes      []write
	inflight    int
	maxInflight int
	block       chan struct{}
	fail        error
}

func (w *recordingWriter) Write(ctx context.Context, id string, kind document.Kind, title, canonical string) (store.WriteResult, error) {
	w.mu.Lock()
	w.inflight++
	if w.inflight > w.maxInflight {
		w.maxInflight = w.inflight
	}
	block := w.block
	fail := w.fail
	w.mu.Unlock()

	if block != nil {
		<-block
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight--
	if fail != nil {
		return store.WriteResult{}, fail
	}
	w.writes = append(w.writes, write{id: id, canonical: canonical})
	return store.WriteResult{DocumentID: id, ContentHash: document.Hash(canonical)}, nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func (w *recordingWriter) last() write {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.writes) == 0 {
		return write{}
	}
	return w.writes[len(w.writes)-1]
}

func (w *recordingWriter) setFail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

// editorStub holds mutable "current content" the snapshot function reads.
type editorStub struct {
	mu   sync.Mutex
	text string
}

func (e *editorStub) set(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

func (e *editorStub) snapshot(ctx context.Context) (autosave.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return autosave.Snapshot{Kind: document.KindPlain, Canonical: e.text}, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDebounceFiresOnce(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(30*time.Millisecond))
	s.Rebind("note-1", ed.snapshot, "")

	ed.set("hello")
	if err := s.ScheduleSave(context.Background()); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitFor(t, "debounced write", func() bool { return w.count() == 1 })
	if got := w.last(); got.id != "note-1" || got.canonical != "hello" {
		t.Errorf("unexpected write %+v", got)
	}
}

func TestScheduleUnboundFails(t *testing.T) {
	s := autosave.New(&recordingWriter{})
	if err := s.ScheduleSave(context.Background()); !errors.Is(err, autosave.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestCoalescingKeepsLastEdit(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(40*time.Millisecond))
	s.Rebind("note-1", ed.snapshot, "")

	ctx := context.Background()
	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		ed.set(text)
		if err := s.ScheduleSave(ctx); err != nil {
			t.Fatalf("schedule: %v", err)
		}
		time.Sleep(5 * time.Millisecond) // within the debounce window
	}

	waitFor(t, "coalesced write", func() bool { return w.count() >= 1 })
	time.Sleep(100 * time.Millisecond) // no second task may fire
	if w.count() != 1 {
		t.Fatalf("expected exactly 1 write, got %d", w.count())
	}
	if got := w.last().canonical; got != "hello" {
		t.Errorf("expected content of the last edit, got %q", got)
	}
}

func TestSaveNowIdempotent(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(time.Hour))
	s.Rebind("note-1", ed.snapshot, "")

	ctx := context.Background()
	ed.set("content")
	if err := s.SaveNow(ctx); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveNow(ctx); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if w.count() != 1 {
		t.Fatalf("expected exactly 1 write, got %d", w.count())
	}

	dirty, err := s.Dirty(ctx)
	if err != nil {
		t.Fatalf("dirty: %v", err)
	}
	if dirty {
		t.Error("document should be clean after save")
	}
}

func TestSaveNowCancelsTimer(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(50*time.Millisecond))
	s.Rebind("note-1", ed.snapshot, "")

	ctx := context.Background()
	ed.set("typed")
	if err := s.ScheduleSave(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.SaveNow(ctx); err != nil {
		t.Fatalf("save now: %v", err)
	}
	if w.count() != 1 {
		t.Fatalf("expected 1 write, got %d", w.count())
	}

	time.Sleep(120 * time.Millisecond) // the cancelled timer must not fire
	if w.count() != 1 {
		t.Fatalf("cancelled timer fired: %d writes", w.count())
	}
}

func TestCancelSaveDropsScheduled(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(30*time.Millisecond))
	s.Rebind("note-1", ed.snapshot, "")

	ed.set("discard me")
	if err := s.ScheduleSave(context.Background()); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.CancelSave()

	time.Sleep(100 * time.Millisecond)
	if w.count() != 0 {
		t.Fatalf("expected no writes after cancel, got %d", w.count())
	}
}

func TestSaveNowAwaitsInFlight(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(time.Hour))
	s.Rebind("note-1", ed.snapshot, "")

	ctx := context.Background()
	ed.set("v1")

	first := make(chan error, 1)
	go func() { first <- s.SaveNow(ctx) }()
	waitFor(t, "first write to start", func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.inflight == 1
	})

	// Edit while the first save is still writing, then flush again.
	ed.set("v2")
	if err := s.ScheduleSave(ctx); err != nil {
		t.Fatalf("schedule during flight: %v", err)
	}
	second := make(chan error, 1)
	go func() { second <- s.SaveNow(ctx) }()

	// The second call must not have finished while the first is blocked.
	select {
	case err := <-second:
		t.Fatalf("second SaveNow resolved before first completed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(w.block)
	if err := <-first; err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second save: %v", err)
	}

	if w.maxInflight != 1 {
		t.Errorf("single-writer violated: %d concurrent writes", w.maxInflight)
	}
	if w.count() != 2 {
		t.Fatalf("expected 2 writes (v1 then v2), got %d", w.count())
	}
	if got := w.last().canonical; got != "v2" {
		t.Errorf("expected final write v2, got %q", got)
	}
}

func TestScheduleWhileInFlightQueuesOneFollowUp(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(30*time.Millisecond))
	s.Rebind("note-1", ed.snapshot, "")

	ctx := context.Background()
	ed.set("v1")

	first := make(chan error, 1)
	go func() { first <- s.SaveNow(ctx) }()
	waitFor(t, "first write to start", func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.inflight == 1
	})

	// Two edits during the flight coalesce into one follow-up task.
	ed.set("v2")
	if err := s.ScheduleSave(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	ed.set("v3")
	if err := s.ScheduleSave(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	close(w.block)
	if err := <-first; err != nil {
		t.Fatalf("first save: %v", err)
	}

	waitFor(t, "follow-up write", func() bool { return w.count() == 2 })
	time.Sleep(80 * time.Millisecond)
	if w.count() != 2 {
		t.Fatalf("expected exactly 2 writes, got %d", w.count())
	}
	if got := w.last().canonical; got != "v3" {
		t.Errorf("follow-up should carry the last edit, got %q", got)
	}
	if w.maxInflight != 1 {
		t.Errorf("single-writer violated: %d concurrent writes", w.maxInflight)
	}
}

func TestFailedSaveLeavesDirtyAndRetriesNaturally(t *testing.T) {
	w := &recordingWriter{}
	w.setFail(errors.New("disk full"))
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(time.Hour))
	s.Rebind("note-1", ed.snapshot, "")

	ctx := context.Background()
	ed.set("precious")

	if err := s.SaveNow(ctx); err == nil {
		t.Fatal("expected write failure")
	}
	dirty, err := s.Dirty(ctx)
	if err != nil {
		t.Fatalf("dirty: %v", err)
	}
	if !dirty {
		t.Fatal("document must stay dirty after a failed save")
	}

	// The backend recovers; the next explicit save succeeds.
	w.setFail(nil)
	if err := s.SaveNow(ctx); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if w.count() != 1 || w.last().canonical != "precious" {
		t.Fatalf("retry did not persist the edit: %+v", w.writes)
	}
	dirty, _ = s.Dirty(ctx)
	if dirty {
		t.Error("document should be clean after successful retry")
	}
}

func TestRebindCancelsArmedTimer(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(30*time.Millisecond))
	s.Rebind("note-a", ed.snapshot, "")

	ed.set("a content")
	if err := s.ScheduleSave(context.Background()); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.Rebind("note-b", ed.snapshot, "a content")

	time.Sleep(100 * time.Millisecond)
	if w.count() != 0 {
		t.Fatalf("timer for old binding fired after rebind: %+v", w.writes)
	}
	if s.DocumentID() != "note-b" {
		t.Errorf("rebind did not take: %q", s.DocumentID())
	}
}

func TestSaveNowNothingToDo(t *testing.T) {
	w := &recordingWriter{}
	ed := &editorStub{}
	s := autosave.New(w, autosave.WithDelay(time.Hour))
	s.Rebind("note-1", ed.snapshot, "")

	// Content matches the baseline; nothing to write.
	if err := s.SaveNow(context.Background()); err != nil {
		t.Fatalf("save now: %v", err)
	}
	if w.count() != 0 {
		t.Fatalf("expected no writes, got %d", w.count())
	}
}
