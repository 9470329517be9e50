// Package tts defines the speech-synthesis capability used by the turn
// pipeline's per-sentence fan-out.
package tts

import (
	"context"

	"github.com/rumina-ai/rumina-go/pkg/ai"
)

// TTS-specific error variables
var (
	// ErrRecoverable indicates a temporary synthesis failure that may succeed if retried.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent synthesis failure that will not succeed if retried.
	ErrFatal = ai.ErrFatal
)

// Synthesizer converts text to encoded audio. Calls are independent: a
// failure for one sentence chunk never affects sibling chunks.
type Synthesizer interface {
	// Synthesize returns encoded audio bytes for the given text.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// ModelName returns the catalog identifier for this provider.
	ModelName() string
}
