package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
)

func TestLedgerBound(t *testing.T) {
	l := NewLedger(2) // retains 4 entries

	for i := 0; i < 10; i++ {
		l.Append(
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("u%d", i)},
			llm.Message{Role: llm.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
		if l.Len() > 4 {
			t.Fatalf("Len() = %d after append %d, cap is 4", l.Len(), i)
		}
	}

	got := l.Snapshot()
	if len(got) != 4 {
		t.Fatalf("Snapshot() length = %d, want 4", len(got))
	}
	// Oldest evicted first: the last two exchanges remain.
	if got[0].Content != "u8" || got[3].Content != "a9" {
		t.Errorf("Snapshot() = %v, want entries u8..a9", got)
	}
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	l := NewLedger(5)
	l.Append(llm.Message{Role: llm.RoleUser, Content: "hello"})

	snap := l.Snapshot()
	snap[0].Content = "mutated"

	if l.Snapshot()[0].Content != "hello" {
		t.Error("Snapshot() must not expose internal storage")
	}
}

func TestLedgerDefaultMax(t *testing.T) {
	l := NewLedger(0)
	for i := 0; i < 3*DefaultMaxTurns; i++ {
		l.Append(
			llm.Message{Role: llm.RoleUser, Content: "u"},
			llm.Message{Role: llm.RoleAssistant, Content: "a"},
		)
	}
	if l.Len() != 2*DefaultMaxTurns {
		t.Errorf("Len() = %d, want %d", l.Len(), 2*DefaultMaxTurns)
	}
}

func TestLedgerConcurrentAppend(t *testing.T) {
	l := NewLedger(5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Append(llm.Message{Role: llm.RoleUser, Content: "x"})
			}
		}()
	}
	wg.Wait()

	if l.Len() != 2*5 {
		t.Errorf("Len() = %d after concurrent appends, want %d", l.Len(), 10)
	}
}
