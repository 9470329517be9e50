package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
)

// DefaultTranscript is used when no scripted transcript remains.
const DefaultTranscript = "This is a fake transcript from the fake transcriber."

// FakeTranscriber is a scripted Transcriber for testing. Each Submit consumes
// the next scripted transcript; results are delivered strictly in submission
// order by a single worker goroutine.
type FakeTranscriber struct {
	mu          sync.Mutex
	transcripts []string
	next        int

	delay   time.Duration
	jobs    chan []byte
	results chan stt.Result
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewFakeTranscriber creates a fake provider that replays the given
// transcripts one per submission.
func NewFakeTranscriber(transcripts ...string) *FakeTranscriber {
	return &FakeTranscriber{
		transcripts: transcripts,
		jobs:        make(chan []byte, 16),
		results:     make(chan stt.Result, 16),
	}
}

// SetDelay makes every transcription take d of simulated backend time.
func (f *FakeTranscriber) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Start launches the single result worker.
func (f *FakeTranscriber) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return fmt.Errorf("fake transcriber already started")
	}
	f.started = true

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for pcm := range f.jobs {
			_ = pcm
			f.mu.Lock()
			delay := f.delay
			text := DefaultTranscript
			if f.next < len(f.transcripts) {
				text = f.transcripts[f.next]
				f.next++
			}
			f.mu.Unlock()

			if delay > 0 {
				time.Sleep(delay)
			}
			f.results <- stt.Result{Text: text, Latency: delay}
		}
		close(f.results)
	}()
	return nil
}

// Submit queues one utterance for the worker.
func (f *FakeTranscriber) Submit(ctx context.Context, pcm []byte) error {
	f.mu.Lock()
	if !f.started || f.stopped {
		f.mu.Unlock()
		return fmt.Errorf("fake transcriber is not running")
	}
	f.mu.Unlock()

	select {
	case f.jobs <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the result channel.
func (f *FakeTranscriber) Results() <-chan stt.Result {
	return f.results
}

// Capabilities returns the fake provider capabilities.
func (f *FakeTranscriber) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		SampleRates: []int{16000},
		Languages:   []string{"ja", "en"},
	}
}

// ModelName returns the catalog identifier.
func (f *FakeTranscriber) ModelName() string { return "fake-stt" }

// Stop drains pending submissions and closes the result channel.
func (f *FakeTranscriber) Stop() error {
	f.mu.Lock()
	if !f.started || f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	f.mu.Unlock()

	close(f.jobs)
	f.wg.Wait()
	return nil
}
