// Package autosave debounces and serializes document saves. One Scheduler
// serves one editor binding; at most one save for its document is scheduled
// or in flight at any time.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Xperiamol/FlashNote-sub001/internal/assets"
	"github.com/Xperiamol/FlashNote-sub001/internal/store"
)

// ErrNotBound is returned when no document is bound to the scheduler.
var ErrNotBound = errors.New("autosave: no document bound")

const defaultDelay = 2 * time.Second

// Scheduler runs the per-document save state machine:
//
//	Idle -> Scheduled (timer armed) -> InFlight -> Idle on success
//	Scheduled -> Cancelled -> Idle on CancelSave
//	InFlight -> Failed -> Idle on write error (no automatic retry)
type Scheduler struct {
	writer store.Writer
	assets assets.Store
	delay  time.Duration
	log    *slog.Logger

	// writeMu serializes the write path: for one document, a later save
	// never completes before an earlier one that already started.
	writeMu sync.Mutex

	mu        sync.Mutex
	docID     string
	snapshot  SnapshotFunc
	baseline  string // canonical form of the last persisted content
	timer     *time.Timer
	gen       uint64 // bumped on every timer arm; stale fires check it and bail
	scheduled *SaveTask
	inflight  *SaveTask
	seq       uint64
	applied   uint64 // seq of the newest task that reached completion
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay sets the debounce delay. Default: 2s.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// WithAssetStore enables payload externalization for structured documents.
func WithAssetStore(as assets.Store) Option {
	return func(s *Scheduler) { s.assets = as }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// New creates an unbound scheduler; call Rebind before scheduling saves.
func New(writer store.Writer, opts ...Option) *Scheduler {
	s := &Scheduler{
		writer: writer,
		delay:  defaultDelay,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rebind points the scheduler at a document. The snapshot function must
// capture the document id it serves; it is never derived from shared mutable
// state. baseline is the canonical form of the document's last-persisted
// content. Any still-armed timer is cancelled so it cannot fire for the old
// document after the rebind.
func (s *Scheduler) Rebind(docID string, snapshot SnapshotFunc, baseline string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelScheduledLocked()
	s.docID = docID
	s.snapshot = snapshot
	s.baseline = baseline
}

// SetDelay changes the debounce delay. Takes effect from the next
// ScheduleSave; an already-armed timer keeps its original delay.
func (s *Scheduler) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// DocumentID returns the currently bound document id.
func (s *Scheduler) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID
}

// Dirty reports whether the current in-memory content differs from the last
// persisted canonical form.
func (s *Scheduler) Dirty(ctx context.Context) (bool, error) {
	s.mu.Lock()
	snapshot, baseline := s.snapshot, s.baseline
	s.mu.Unlock()
	if snapshot == nil {
		return false, nil
	}
	snap, err := snapshot(ctx)
	if err != nil {
		return true, fmt.Errorf("autosave: snapshot: %w", err)
	}
	return snap.Canonical != baseline, nil
}

// ScheduleSave captures the current content and (re)arms the debounce timer.
// Calling it again before the timer fires replaces the captured payload and
// restarts the timer; schedules coalesce, they do not stack. Scheduling
// while a save is in flight queues exactly one follow-up task behind it.
func (s *Scheduler) ScheduleSave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docID == "" {
		return ErrNotBound
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("autosave: snapshot: %w", err)
	}

	if s.scheduled != nil {
		s.seq++
		s.scheduled.Payload = snap
		s.scheduled.seq = s.seq
		s.armLocked(s.scheduled)
		return nil
	}

	s.seq++
	task := &SaveTask{
		DocumentID: s.docID,
		Payload:    snap,
		State:      StateScheduled,
		seq:        s.seq,
		done:       make(chan struct{}),
	}
	s.scheduled = task
	s.armLocked(task)
	return nil
}

// armLocked (re)arms the debounce timer for task under a fresh generation.
// A timer that already expired before the re-arm carries the old generation,
// so its fire returns without writing and the quiet period truly restarts.
// Caller holds s.mu.
func (s *Scheduler) armLocked(task *SaveTask) {
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { s.fire(task, gen) })
}

// SaveNow cancels any armed timer and persists immediately. If a save is
// already in flight the call awaits it instead of starting a second one,
// then flushes whatever newer content is still pending. Returns nil when
// there is nothing to write.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	for {
		s.mu.Lock()
		if flight := s.inflight; flight != nil {
			s.mu.Unlock()
			select {
			case <-flight.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		var task *SaveTask
		if s.scheduled != nil {
			s.timer.Stop()
			s.timer = nil
			task = s.scheduled
			s.scheduled = nil
		} else {
			if s.docID == "" {
				s.mu.Unlock()
				return nil
			}
			snap, err := s.snapshot(ctx)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("autosave: snapshot: %w", err)
			}
			if snap.Canonical == s.baseline {
				s.mu.Unlock()
				return nil
			}
			s.seq++
			task = &SaveTask{
				DocumentID: s.docID,
				Payload:    snap,
				State:      StateScheduled,
				seq:        s.seq,
				done:       make(chan struct{}),
			}
		}
		s.mu.Unlock()
		return s.run(ctx, task)
	}
}

// CancelSave drops a scheduled save with no side effects. It has no effect
// on an in-flight save; a started write cannot be un-written.
func (s *Scheduler) CancelSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelScheduledLocked()
}

func (s *Scheduler) cancelScheduledLocked() {
	if s.scheduled == nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.scheduled.State = StateCancelled
	close(s.scheduled.done)
	s.scheduled = nil
}

// fire runs in the timer goroutine when the debounce window closes.
func (s *Scheduler) fire(task *SaveTask, gen uint64) {
	s.mu.Lock()
	if s.scheduled != task || gen != s.gen {
		// Cancelled, already flushed by SaveNow, rebound away, or re-armed
		// after this window expired.
		s.mu.Unlock()
		return
	}
	s.scheduled = nil
	s.timer = nil
	s.mu.Unlock()

	// Errors are reported on the task and logged; the next edit or an
	// explicit save retries naturally.
	_ = s.run(context.Background(), task)
}

// run executes one task's write. writeMu makes writes totally ordered per
// scheduler; the seq guard drops a task whose payload was superseded by a
// save that already landed.
func (s *Scheduler) run(ctx context.Context, task *SaveTask) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if task.State == StateCancelled {
		s.mu.Unlock()
		return nil
	}
	if task.DocumentID != s.docID {
		// The binding moved on while this task was waiting its turn; its
		// payload belongs to a document that is no longer loaded.
		task.State = StateCancelled
		close(task.done)
		s.mu.Unlock()
		return nil
	}
	if task.seq < s.applied || task.Payload.Canonical == s.baseline {
		task.State = StateCompleted
		task.Skipped = true
		if task.seq > s.applied {
			s.applied = task.seq
		}
		close(task.done)
		s.mu.Unlock()
		return nil
	}
	task.State = StateInFlight
	s.inflight = task
	s.mu.Unlock()

	var err error
	if len(task.Payload.Files) > 0 && s.assets != nil {
		_, err = assets.Externalize(ctx, s.assets, task.Payload.Files)
	}
	var res store.WriteResult
	if err == nil {
		res, err = s.writer.Write(ctx, task.DocumentID, task.Payload.Kind, task.Payload.Title, task.Payload.Canonical)
	}

	s.mu.Lock()
	s.inflight = nil
	if err != nil {
		task.State = StateFailed
		task.Err = err
		close(task.done)
		s.mu.Unlock()
		s.log.Error("autosave failed", "document", task.DocumentID, "error", err)
		return fmt.Errorf("autosave: save %s: %w", task.DocumentID, err)
	}
	task.State = StateCompleted
	task.Skipped = res.Skipped
	if task.seq > s.applied {
		s.applied = task.seq
	}
	if task.DocumentID == s.docID {
		s.baseline = task.Payload.Canonical
	}
	close(task.done)
	s.mu.Unlock()

	s.log.Debug("autosave completed",
		"document", task.DocumentID,
		"hash", res.ContentHash,
		"skipped", res.Skipped)
	return nil
}
