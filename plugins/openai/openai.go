// Package openai provides OpenAI-backed implementations of the three
// capability roles: Whisper transcription, chat-completion generation with
// vision, and speech synthesis.
package openai

import (
	"fmt"
	"os"

	gopenai "github.com/sashabaranov/go-openai"
)

// Config holds the shared provider configuration. One client is built per
// Config and shared by the providers created from it.
type Config struct {
	// APIKey falls back to the OPENAI_API_KEY environment variable.
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and compatible servers.
	BaseURL string

	STTModel string // default whisper-1
	LLMModel string // default gpt-4o
	TTSModel string // default tts-1
	Voice    string // default alloy

	// Language hints Whisper; empty means auto-detect.
	Language string
}

func (c *Config) applyDefaults() error {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY)")
	}
	if c.STTModel == "" {
		c.STTModel = gopenai.Whisper1
	}
	if c.LLMModel == "" {
		c.LLMModel = gopenai.GPT4o
	}
	if c.TTSModel == "" {
		c.TTSModel = string(gopenai.TTSModel1)
	}
	if c.Voice == "" {
		c.Voice = string(gopenai.VoiceAlloy)
	}
	return nil
}

func (c *Config) newClient() *gopenai.Client {
	if c.BaseURL != "" {
		cfg := gopenai.DefaultConfig(c.APIKey)
		cfg.BaseURL = c.BaseURL
		return gopenai.NewClientWithConfig(cfg)
	}
	return gopenai.NewClient(c.APIKey)
}
