// Package registry binds model identifiers to provider bundles. It sits
// above the capability packages so that a session can resolve one
// transcriber, one generator, and one synthesizer from a single model name
// at init time.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
	"github.com/rumina-ai/rumina-go/pkg/ai/tts"
)

// DefaultSystemPrompt is used when a bundle does not set its own.
const DefaultSystemPrompt = "You are a helpful assistant."

// Bundle is one resolvable model set: factories for each capability role
// plus an optional system prompt. Factories may return shared instances for
// stateless providers or fresh ones per session.
type Bundle struct {
	SystemPrompt string

	NewTranscriber func() stt.Transcriber
	NewGenerator   func() llm.ResponseGenerator
	NewSynthesizer func() tts.Synthesizer
}

// Registry maps model names to bundles. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{bundles: make(map[string]*Bundle)}
}

// Register adds a bundle under model. Every factory must be set, and a
// model may only be registered once.
func (r *Registry) Register(model string, bundle *Bundle) error {
	if model == "" {
		return fmt.Errorf("model name must not be empty")
	}
	if bundle == nil || bundle.NewTranscriber == nil || bundle.NewGenerator == nil || bundle.NewSynthesizer == nil {
		return fmt.Errorf("bundle for %q is missing a provider factory", model)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bundles[model]; exists {
		return fmt.Errorf("model %q already registered", model)
	}
	r.bundles[model] = bundle
	return nil
}

// Resolve returns the bundle registered under model.
func (r *Registry) Resolve(model string) (*Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bundle, ok := r.bundles[model]
	if !ok {
		return nil, fmt.Errorf("unsupported model: %s", model)
	}
	return bundle, nil
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bundles))
	for name := range r.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
