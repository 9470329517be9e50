// Package segment turns a live stream of audio frames into discrete
// utterances. Two modes exist: classifier-driven segmentation (Segmenter),
// where the server decides where speech starts and ends, and marker-driven
// passthrough (MarkerSegmenter), where the client sends explicit start/end
// control messages.
package segment

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/rtc"
	"github.com/rumina-ai/rumina-go/pkg/vad"
)

// Utterance is one user speech segment: the PCM between a detected (or
// declared) start and end, the image snapshot latched at start-of-speech,
// and the epoch assigned when speech began.
type Utterance struct {
	PCM         []byte
	ImageBase64 string
	Duration    time.Duration
	Epoch       uint64
}

// state is the segmentation sub-state while consuming frames.
type state int

const (
	stateIdle state = iota
	stateRecording
	stateTrailingSilence
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateRecording:
		return "Recording"
	case stateTrailingSilence:
		return "TrailingSilence"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

const (
	// DefaultSilenceThreshold ends an utterance after this much trailing silence.
	DefaultSilenceThreshold = time.Second
	// DefaultMinUtterance discards shorter utterances as noise.
	DefaultMinUtterance = 500 * time.Millisecond
	// DefaultPollInterval bounds how long the timeout path can lag behind the
	// silence threshold when frames stop arriving entirely.
	DefaultPollInterval = 100 * time.Millisecond
)

// Config configures a Segmenter.
type Config struct {
	// Classifier decides speech vs silence per frame. Required.
	Classifier vad.Classifier

	// SilenceThreshold is the trailing-silence duration that ends an
	// utterance. Adjustable mid-session via SetSilenceThreshold.
	SilenceThreshold time.Duration

	// MinUtterance is the minimum speech duration worth emitting.
	MinUtterance time.Duration

	// PollInterval is how often the timeout path re-checks the silence clock
	// when no frames arrive.
	PollInterval time.Duration

	// OnSpeechStart, when set, is called once at the transition into
	// Recording and its return value becomes the utterance's epoch.
	OnSpeechStart func() uint64

	Logger *slog.Logger
}

// Segmenter consumes frames pushed by the ingestion loop and emits completed
// utterances. Run owns all segmentation state; Push, UpdateImage, and
// SetSilenceThreshold are safe to call from other goroutines.
type Segmenter struct {
	classify      vad.Classifier
	minUtterance  time.Duration
	pollInterval  time.Duration
	onSpeechStart func() uint64
	logger        *slog.Logger

	silenceThreshold atomic.Int64 // time.Duration

	frames     chan *rtc.AudioFrame
	utterances chan Utterance
	closeOnce  sync.Once

	imageMu     sync.Mutex
	latestImage string
}

// New creates a Segmenter. Zero config durations fall back to defaults.
func New(cfg Config) (*Segmenter, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.MinUtterance <= 0 {
		cfg.MinUtterance = DefaultMinUtterance
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Segmenter{
		classify:      cfg.Classifier,
		minUtterance:  cfg.MinUtterance,
		pollInterval:  cfg.PollInterval,
		onSpeechStart: cfg.OnSpeechStart,
		logger:        cfg.Logger,
		frames:        make(chan *rtc.AudioFrame, 64),
		utterances:    make(chan Utterance, 4),
	}
	s.silenceThreshold.Store(int64(cfg.SilenceThreshold))
	return s, nil
}

// Push hands one frame to the segmentation loop.
func (s *Segmenter) Push(ctx context.Context, frame *rtc.AudioFrame) error {
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseInput signals that no further frames will arrive. Run finishes any
// in-progress utterance and returns.
func (s *Segmenter) CloseInput() {
	s.closeOnce.Do(func() { close(s.frames) })
}

// UpdateImage replaces the image snapshot that will be latched at the next
// start-of-speech.
func (s *Segmenter) UpdateImage(imageBase64 string) {
	s.imageMu.Lock()
	s.latestImage = imageBase64
	s.imageMu.Unlock()
}

// SetSilenceThreshold updates the trailing-silence duration. The new value
// applies to subsequent segmentation decisions only.
func (s *Segmenter) SetSilenceThreshold(d time.Duration) {
	s.silenceThreshold.Store(int64(d))
}

// SilenceThreshold returns the current trailing-silence duration.
func (s *Segmenter) SilenceThreshold() time.Duration {
	return time.Duration(s.silenceThreshold.Load())
}

// Utterances returns the channel completed utterances are emitted on.
// It is closed when Run returns.
func (s *Segmenter) Utterances() <-chan Utterance {
	return s.utterances
}

// Run drives the segmentation state machine until the context is cancelled
// or the input is closed.
//
// Only speech-classified frames accumulate into the utterance buffer;
// trailing silence is timed but never recorded. The silence clock starts at
// the first silence-classified frame, or at the last received frame when
// frames stop arriving, whichever comes first.
func (s *Segmenter) Run(ctx context.Context) error {
	defer close(s.utterances)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var (
		st           = stateIdle
		buf          bytes.Buffer
		duration     time.Duration
		image        string
		epoch        uint64
		silenceSince time.Time
		lastFrameAt  time.Time
	)

	reset := func() {
		st = stateIdle
		buf.Reset()
		duration = 0
		image = ""
		epoch = 0
		silenceSince = time.Time{}
	}

	finish := func() error {
		defer reset()
		if duration < s.minUtterance {
			s.logger.Debug("discarding short utterance",
				slog.Duration("duration", duration),
				slog.Duration("min", s.minUtterance))
			return nil
		}

		pcm := make([]byte, buf.Len())
		copy(pcm, buf.Bytes())
		utt := Utterance{PCM: pcm, ImageBase64: image, Duration: duration, Epoch: epoch}

		select {
		case s.utterances <- utt:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-s.frames:
			if !ok {
				if st != stateIdle {
					return finish()
				}
				return nil
			}
			lastFrameAt = time.Now()
			speech := s.classify(frame)

			switch st {
			case stateIdle:
				if !speech {
					continue
				}
				st = stateRecording
				buf.Write(frame.Data)
				duration += frame.Duration()
				s.imageMu.Lock()
				image = s.latestImage
				s.imageMu.Unlock()
				if s.onSpeechStart != nil {
					epoch = s.onSpeechStart()
				}
				s.logger.Debug("speech start", slog.Uint64("epoch", epoch))

			case stateRecording, stateTrailingSilence:
				if speech {
					buf.Write(frame.Data)
					duration += frame.Duration()
					st = stateRecording
					silenceSince = time.Time{}
					continue
				}
				if st == stateRecording {
					st = stateTrailingSilence
					silenceSince = time.Now()
				} else if time.Since(silenceSince) > s.SilenceThreshold() {
					s.logger.Debug("speech end", slog.Uint64("epoch", epoch))
					if err := finish(); err != nil {
						return err
					}
				}
			}

		case <-ticker.C:
			if st == stateIdle {
				continue
			}
			// No frames for a full poll interval counts as silence onset.
			if st == stateRecording && time.Since(lastFrameAt) >= s.pollInterval {
				st = stateTrailingSilence
				silenceSince = lastFrameAt
			}
			if st == stateTrailingSilence && time.Since(silenceSince) > s.SilenceThreshold() {
				s.logger.Debug("speech end on timeout", slog.Uint64("epoch", epoch))
				if err := finish(); err != nil {
					return err
				}
			}
		}
	}
}
