// Package stt defines the speech-to-text capability consumed by the
// transcription stage. Providers accept one complete utterance worth of PCM
// per submission and report transcripts asynchronously on a result channel.
package stt

import (
	"context"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/ai"
)

// STT-specific error variables
var (
	// ErrRecoverable indicates a temporary STT failure that may succeed if retried.
	// Examples: network timeout, service unavailable, rate limiting.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent STT failure that will not succeed if retried.
	// Examples: invalid audio format, unsupported language, authentication failure.
	ErrFatal = ai.ErrFatal
)

// Result is one transcription outcome for one submitted utterance.
type Result struct {
	Text    string        // transcript, may be empty for silence
	Latency time.Duration // wall-clock time spent in the backend
	Err     error         // non-nil if the backend failed for this utterance
}

// Capabilities describes what a Transcriber supports.
type Capabilities struct {
	SampleRates []int
	Languages   []string
}

// Transcriber is the batch speech-to-text capability.
//
// Implementations must deliver exactly one Result per successful Submit, and
// must preserve submission order on the Results channel: the pending-epoch
// pairing in the transcription stage relies on FIFO correspondence between
// submissions and results. A provider that processes requests concurrently
// must serialize result delivery itself.
type Transcriber interface {
	// Start prepares the provider. Submit may only be called after Start.
	Start(ctx context.Context) error

	// Submit hands one utterance of 16-bit mono PCM to the backend.
	// It returns quickly; the transcript arrives on Results.
	Submit(ctx context.Context, pcm []byte) error

	// Results returns the channel transcripts are delivered on.
	// The channel is closed by Stop.
	Results() <-chan Result

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities

	// ModelName returns the catalog identifier for this provider.
	ModelName() string

	// Stop drains in-flight work and closes the Results channel.
	Stop() error
}
