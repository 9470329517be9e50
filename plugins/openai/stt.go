package openai

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/rumina-ai/rumina-go/pkg/ai"
	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
	"github.com/rumina-ai/rumina-go/pkg/audio/wav"
)

// sampleRate matches the wire protocol's 16 kHz mono PCM.
const sampleRate = 16000

// WhisperTranscriber implements stt.Transcriber over the Whisper API. A
// single worker goroutine transcribes submissions one at a time, which
// yields the FIFO result ordering the Transcriber contract requires.
type WhisperTranscriber struct {
	client   *gopenai.Client
	model    string
	language string

	mu      sync.Mutex
	started bool
	stopped bool

	jobs    chan []byte
	results chan stt.Result
	wg      sync.WaitGroup
}

// NewWhisperTranscriber creates a transcriber from the shared config.
func NewWhisperTranscriber(cfg Config) (*WhisperTranscriber, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &WhisperTranscriber{
		client:   cfg.newClient(),
		model:    cfg.STTModel,
		language: cfg.Language,
		jobs:     make(chan []byte, 16),
		results:  make(chan stt.Result, 16),
	}, nil
}

// Start launches the transcription worker.
func (w *WhisperTranscriber) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("transcriber already started")
	}
	w.started = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.results)
		for pcm := range w.jobs {
			w.results <- w.transcribe(ctx, pcm)
		}
	}()
	return nil
}

// Submit queues one utterance of 16-bit mono PCM for transcription.
func (w *WhisperTranscriber) Submit(ctx context.Context, pcm []byte) error {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("transcriber is not running")
	}
	w.mu.Unlock()

	select {
	case w.jobs <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the result channel. Closed after Stop.
func (w *WhisperTranscriber) Results() <-chan stt.Result {
	return w.results
}

// Capabilities reports supported input rates and primary languages.
func (w *WhisperTranscriber) Capabilities() stt.Capabilities {
	return stt.Capabilities{
		SampleRates: []int{16000, 22050, 44100, 48000},
		Languages:   []string{"ja", "en", "zh", "de", "es", "fr", "ko"},
	}
}

// ModelName returns the catalog identifier.
func (w *WhisperTranscriber) ModelName() string { return w.model }

// Stop drains pending submissions and closes the result channel.
func (w *WhisperTranscriber) Stop() error {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.jobs)
	w.wg.Wait()
	return nil
}

func (w *WhisperTranscriber) transcribe(ctx context.Context, pcm []byte) stt.Result {
	start := time.Now()

	req := gopenai.AudioRequest{
		Model:    w.model,
		Language: w.language,
		Format:   gopenai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav.Encode(pcm, sampleRate, 1)),
		FilePath: "audio.wav",
	}
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return stt.Result{
			Latency: time.Since(start),
			Err:     ai.NewRecoverableError(err, "whisper transcription failed"),
		}
	}
	return stt.Result{Text: resp.Text, Latency: time.Since(start)}
}
