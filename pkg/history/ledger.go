// Package history keeps the bounded per-session conversation record shared
// by the turn pipeline. One Ledger exists per session; it is created at
// session start and discarded at teardown, never shared across sessions.
package history

import (
	"sync"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
)

// DefaultMaxTurns bounds the ledger to the last 5 user/assistant exchanges.
const DefaultMaxTurns = 5

// Ledger is an append-only conversation record truncated from the oldest
// end after every append. It retains at most 2*maxTurns entries (a turn is
// one user entry plus one assistant entry). Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	max     int // entry cap, 2*maxTurns
	entries []llm.Message
}

// NewLedger creates a ledger retaining the last maxTurns exchanges.
// maxTurns <= 0 falls back to DefaultMaxTurns.
func NewLedger(maxTurns int) *Ledger {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Ledger{max: 2 * maxTurns}
}

// Append adds entries and evicts oldest-first past the cap.
func (l *Ledger) Append(entries ...llm.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entries...)
	if n := len(l.entries); n > l.max {
		l.entries = append(l.entries[:0:0], l.entries[n-l.max:]...)
	}
}

// Snapshot returns a copy of the retained entries, oldest first.
func (l *Ledger) Snapshot() []llm.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]llm.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
