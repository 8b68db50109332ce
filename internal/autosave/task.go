package autosave

import (
	"context"

	"github.com/Xperiamol/FlashNote-sub001/internal/document"
)

// TaskState is the lifecycle state of a save attempt.
type TaskState int

const (
	StateScheduled TaskState = iota // debounce timer armed
	StateInFlight                   // storage write running
	StateCompleted
	StateCancelled
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateInFlight:
		return "in-flight"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the content captured for one save attempt. It is taken at
// schedule time, never re-read when the task fires, so a task can never
// carry content belonging to a document other than the one it was created
// for.
type Snapshot struct {
	Kind      document.Kind
	Title     string
	Canonical string
	// Files holds the scene's binary payloads for structured documents;
	// they are externalized in the write path.
	Files map[string]document.Payload
}

// SnapshotFunc produces the current content of the bound document in
// canonical form.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

// SaveTask is one scheduled or in-flight persistence attempt. DocumentID is
// fixed at creation and never re-pointed.
type SaveTask struct {
	DocumentID string
	Payload    Snapshot
	State      TaskState
	// Skipped marks a task that completed without a storage write, either
	// because the content matched the persisted baseline or because a newer
	// save already landed.
	Skipped bool
	Err     error

	// seq orders tasks within one scheduler; a task never writes over the
	// result of a higher-seq task.
	seq  uint64
	done chan struct{}
}

// Done is closed when the task reaches a terminal state.
func (t *SaveTask) Done() <-chan struct{} { return t.done }
