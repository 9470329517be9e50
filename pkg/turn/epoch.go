// Package turn implements the speech-epoch model that orders and cancels
// overlapping conversational work. Every utterance is assigned a strictly
// increasing epoch; at most one epoch is current per session, and beginning
// a new utterance advises whatever task still references the prior epoch to
// stop producing output.
//
// Cancellation is advisory: stale work detects it at checkpoints and is
// never forcibly terminated. An external model call already in flight is
// allowed to complete; its output is suppressed or downgraded instead.
package turn

import "sync"

// Tracker assigns epochs and carries the advisory cancellation signal from
// each new utterance to the previously active task.
type Tracker struct {
	mu      sync.Mutex
	current uint64
	active  *Task
}

// NewTracker creates a Tracker. Epochs start at 1 with the first utterance.
func NewTracker() *Tracker {
	return &Tracker{}
}

// BeginUtterance increments and returns the current epoch, cancelling the
// previously active task in the same critical section so no window exists
// where the old task and the new epoch are both live.
func (t *Tracker) BeginUtterance() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current++
	if t.active != nil {
		t.active.Cancel()
		t.active = nil
	}
	return t.current
}

// Current returns the current epoch.
func (t *Tracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IsStale reports whether epoch is no longer the current one.
func (t *Tracker) IsStale(epoch uint64) bool {
	return t.Current() != epoch
}

// Bind marks task as the one active task. A task bound for an epoch that is
// already stale is cancelled immediately.
func (t *Tracker) Bind(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task.Epoch != t.current {
		task.Cancel()
		return
	}
	t.active = task
}

// CancelActive cancels the currently bound task, if any, without starting a
// new epoch. Used for explicit stop-generation requests.
func (t *Tracker) CancelActive() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		t.active.Cancel()
	}
}

// ActiveCancelled reports whether a task is bound and has been cancelled.
// It lets callers observe that an explicit stop has taken effect.
func (t *Tracker) ActiveCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.active != nil && t.active.Cancelled()
}
