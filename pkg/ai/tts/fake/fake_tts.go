package fake

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeSynthesizer is a scripted Synthesizer for testing. The synthesized
// audio is just the input text prefixed with "pcm:"; tests can assert on it
// without decoding anything.
type FakeSynthesizer struct {
	Delay    time.Duration
	FailText string // Synthesize fails when the text equals this

	mu    sync.Mutex
	calls []string
}

// NewFakeSynthesizer creates a new fake synthesizer.
func NewFakeSynthesizer() *FakeSynthesizer {
	return &FakeSynthesizer{}
}

// Synthesize returns deterministic bytes for the given text.
func (f *FakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.FailText != "" && text == f.FailText {
		return nil, fmt.Errorf("fake synthesis failure for %q", text)
	}
	return []byte("pcm:" + text), nil
}

// Calls returns the texts synthesized so far.
func (f *FakeSynthesizer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// ModelName returns the catalog identifier.
func (f *FakeSynthesizer) ModelName() string { return "fake-tts" }
