package openai

import (
	"context"
	"fmt"
	"io"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/rumina-ai/rumina-go/pkg/ai"
)

// SpeechSynthesizer implements tts.Synthesizer over the speech API. The
// response is returned as encoded audio bytes (MP3 by default); decoding is
// the client's concern.
type SpeechSynthesizer struct {
	client *gopenai.Client
	model  string
	voice  string
}

// NewSpeechSynthesizer creates a synthesizer from the shared config.
func NewSpeechSynthesizer(cfg Config) (*SpeechSynthesizer, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &SpeechSynthesizer{
		client: cfg.newClient(),
		model:  cfg.TTSModel,
		voice:  cfg.Voice,
	}, nil
}

// Synthesize returns encoded audio for the given text.
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, gopenai.CreateSpeechRequest{
		Model: gopenai.SpeechModel(s.model),
		Input: text,
		Voice: gopenai.SpeechVoice(s.voice),
	})
	if err != nil {
		return nil, ai.NewRecoverableError(err, "speech synthesis failed")
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio failed: %w", err)
	}
	return audio, nil
}

// ModelName returns the catalog identifier.
func (s *SpeechSynthesizer) ModelName() string { return s.model }
