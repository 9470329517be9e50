package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
	"github.com/rumina-ai/rumina-go/pkg/segment"
)

// Transcript is a validated transcription result paired back to the epoch
// (and latched image) of the utterance that produced it.
type Transcript struct {
	Text        string
	Epoch       uint64
	ImageBase64 string
	Latency     time.Duration
}

// pendingUtterance rides the pending-epoch queue between submission and
// result pairing.
type pendingUtterance struct {
	epoch uint64
	image string
}

// TranscriptionStage wraps the Transcriber capability. Submissions push
// their epoch onto a FIFO pending queue; the Run loop drains the
// transcriber's result stream and pairs each result with the next pending
// epoch. The pairing is correct because the Transcriber contract guarantees
// one result per submission, in submission order (single-flight backend).
//
// Submit is intended for a single producer (the ingestion loop) and Run is
// the single consumer.
type TranscriptionStage struct {
	transcriber stt.Transcriber
	logger      *slog.Logger

	mu      sync.Mutex
	pending []pendingUtterance

	out chan Transcript
}

// NewTranscriptionStage creates a stage over the given transcriber.
func NewTranscriptionStage(transcriber stt.Transcriber, logger *slog.Logger) *TranscriptionStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptionStage{
		transcriber: transcriber,
		logger:      logger,
		out:         make(chan Transcript, 4),
	}
}

// Submit fires one utterance into the transcriber. The epoch is enqueued
// before submission and rolled back if the submission fails, so the pending
// queue always mirrors the transcriber's in-flight work.
func (s *TranscriptionStage) Submit(ctx context.Context, utt segment.Utterance) error {
	s.mu.Lock()
	s.pending = append(s.pending, pendingUtterance{epoch: utt.Epoch, image: utt.ImageBase64})
	s.mu.Unlock()

	if err := s.transcriber.Submit(ctx, utt.PCM); err != nil {
		s.mu.Lock()
		if n := len(s.pending); n > 0 {
			s.pending = s.pending[:n-1]
		}
		s.mu.Unlock()
		return fmt.Errorf("transcription submit failed: %w", err)
	}
	return nil
}

// Transcripts returns the channel of validated, epoch-paired transcripts.
// It is closed when Run returns.
func (s *TranscriptionStage) Transcripts() <-chan Transcript {
	return s.out
}

// Run consumes transcriber results until the context is cancelled or the
// transcriber's result channel closes. Invalid transcripts consume their
// pending entry but are suppressed: nothing is forwarded downstream and no
// error is surfaced.
func (s *TranscriptionStage) Run(ctx context.Context) error {
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case res, ok := <-s.transcriber.Results():
			if !ok {
				return nil
			}

			pend, ok := s.popPending()
			if !ok {
				s.logger.Warn("transcription result without pending epoch dropped",
					slog.String("text", res.Text))
				continue
			}

			if res.Err != nil {
				s.logger.Error("transcription failed",
					slog.Uint64("epoch", pend.epoch),
					slog.String("error", res.Err.Error()))
				continue
			}

			if IsInvalidTranscript(res.Text) {
				s.logger.Info("skipping invalid transcript",
					slog.Uint64("epoch", pend.epoch),
					slog.String("text", res.Text))
				continue
			}

			s.logger.Debug("transcript paired",
				slog.Uint64("epoch", pend.epoch),
				slog.Duration("latency", res.Latency))

			t := Transcript{
				Text:        res.Text,
				Epoch:       pend.epoch,
				ImageBase64: pend.image,
				Latency:     res.Latency,
			}
			select {
			case s.out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *TranscriptionStage) popPending() (pendingUtterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return pendingUtterance{}, false
	}
	pend := s.pending[0]
	s.pending = s.pending[1:]
	return pend, true
}
