package openai

import (
	"fmt"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
	"github.com/rumina-ai/rumina-go/pkg/ai/registry"
	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
	"github.com/rumina-ai/rumina-go/pkg/ai/tts"
)

// Register adds one bundle per generation model, each paired with the
// configured Whisper and speech models. With no models given, the config's
// LLMModel is registered alone.
//
// The generator and synthesizer are stateless and shared across sessions;
// the transcriber carries per-session queues and is built fresh each time.
func Register(reg *registry.Registry, cfg Config, models ...string) error {
	if err := cfg.applyDefaults(); err != nil {
		return err
	}
	if len(models) == 0 {
		models = []string{cfg.LLMModel}
	}

	for _, model := range models {
		c := cfg
		c.LLMModel = model

		generator, err := NewChatGenerator(c)
		if err != nil {
			return fmt.Errorf("generator for %q: %w", model, err)
		}
		synthesizer, err := NewSpeechSynthesizer(c)
		if err != nil {
			return fmt.Errorf("synthesizer for %q: %w", model, err)
		}

		bundle := &registry.Bundle{
			NewTranscriber: func() stt.Transcriber {
				t, err := NewWhisperTranscriber(c)
				if err != nil {
					// applyDefaults already validated the config.
					panic(fmt.Sprintf("whisper transcriber: %v", err))
				}
				return t
			},
			NewGenerator:   func() llm.ResponseGenerator { return generator },
			NewSynthesizer: func() tts.Synthesizer { return synthesizer },
		}
		if err := reg.Register(model, bundle); err != nil {
			return err
		}
	}
	return nil
}
