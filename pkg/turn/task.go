package turn

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Task is the unit of in-flight work for one epoch, from transcription
// hand-off through synthesis. Its cancellation flag is set by the arrival of
// a newer epoch or by an explicit stop request, and checked at pipeline
// checkpoints rather than polled.
type Task struct {
	ID    string
	Epoch uint64

	cancelled atomic.Bool
}

// NewTask creates a task owning the given epoch.
func NewTask(epoch uint64) *Task {
	return &Task{
		ID:    fmt.Sprintf("assistant_%s", uuid.NewString()[:8]),
		Epoch: epoch,
	}
}

// Cancel sets the advisory cancellation flag.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the flag is set.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Stale is the staleness test used by every pipeline checkpoint: the task's
// epoch has been superseded, or the task was cancelled explicitly.
func (t *Task) Stale(tracker *Tracker) bool {
	return t.Cancelled() || tracker.Current() != t.Epoch
}
