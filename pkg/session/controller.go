// Package session owns one websocket conversation end to end: the
// handshake, the concurrent ingest and consumption loops, delivery of
// pipeline output back over the socket, and orderly teardown when the
// client disconnects.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rumina-ai/rumina-go/pkg/ai/registry"
	"github.com/rumina-ai/rumina-go/pkg/ai/stt"
	"github.com/rumina-ai/rumina-go/pkg/history"
	"github.com/rumina-ai/rumina-go/pkg/pipeline"
	"github.com/rumina-ai/rumina-go/pkg/rtc"
	"github.com/rumina-ai/rumina-go/pkg/segment"
	"github.com/rumina-ai/rumina-go/pkg/telemetry"
	"github.com/rumina-ai/rumina-go/pkg/turn"
	"github.com/rumina-ai/rumina-go/pkg/vad"
)

// SampleRate is the PCM rate the wire protocol mandates: 16-bit
// little-endian mono at 16 kHz.
const SampleRate = 16000

// silenceFloor is the minimum effective trailing-silence threshold.
const silenceFloor = 50 * time.Millisecond

// silenceMargin is subtracted from the client-requested threshold to
// compensate for network and segmentation lag.
const silenceMargin = 300 * time.Millisecond

// Conn is the subset of *websocket.Conn the controller needs. Reads happen
// on one goroutine; writes are serialized internally.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Config carries the per-server collaborators a session is built from.
type Config struct {
	Registry *registry.Registry

	// Telemetry defaults to a NopSink.
	Telemetry telemetry.Sink

	// ServerVAD switches from marker-driven segmentation to
	// classifier-driven segmentation of the raw frame stream.
	ServerVAD bool

	// Classifier is used in ServerVAD mode. Defaults to the energy
	// classifier.
	Classifier vad.Classifier

	// MaxHistoryTurns bounds the ledger. Zero means the default.
	MaxHistoryTurns int

	Logger *slog.Logger
}

// Controller runs one session over one websocket connection.
type Controller struct {
	conn   Conn
	cfg    Config
	logger *slog.Logger
	id     string

	writeMu sync.Mutex

	tracker     *turn.Tracker
	marker      *segment.MarkerSegmenter
	segmenter   *segment.Segmenter
	stage       *pipeline.TranscriptionStage
	transcriber stt.Transcriber
}

// New creates a controller for one accepted connection.
func New(conn Conn, cfg Config) *Controller {
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NopSink{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = vad.EnergyClassifier(vad.DefaultEnergyThreshold)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Controller{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With(slog.String("session", id)),
		id:     id,
	}
}

// Run performs the handshake and drives the session until the client
// disconnects or the context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	init, err := c.handshake()
	if err != nil {
		return err
	}

	bundle, err := c.cfg.Registry.Resolve(init.Model)
	if err != nil {
		c.send(errorMessage{Type: msgError, Message: err.Error()})
		return fmt.Errorf("session init rejected: %w", err)
	}

	c.transcriber = bundle.NewTranscriber()
	generator := bundle.NewGenerator()
	synthesizer := bundle.NewSynthesizer()

	systemPrompt := bundle.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = registry.DefaultSystemPrompt
	}

	modelSet := telemetry.NewModelSet(
		c.transcriber.ModelName(), generator.ModelName(), synthesizer.ModelName())
	c.upsertModelSet(modelSet)

	c.tracker = turn.NewTracker()
	c.stage = pipeline.NewTranscriptionStage(c.transcriber, c.logger)

	pipe := pipeline.New(pipeline.Config{
		Generator:    generator,
		Synthesizer:  synthesizer,
		Tracker:      c.tracker,
		Ledger:       history.NewLedger(c.cfg.MaxHistoryTurns),
		Emitter:      c,
		Telemetry:    c.cfg.Telemetry,
		Tokens:       pipeline.NewTokenCounter(generator.ModelName()),
		SystemPrompt: systemPrompt,
		Streaming:    init.Stream,
		SessionID:    c.id,
		ModelSetID:   modelSet.SetID,
		Logger:       c.logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.transcriber.Start(ctx); err != nil {
		return fmt.Errorf("transcriber start failed: %w", err)
	}

	if c.cfg.ServerVAD {
		c.segmenter, err = segment.New(segment.Config{
			Classifier:       c.cfg.Classifier,
			SilenceThreshold: silenceThresholdFromMillis(init.VADSilenceThreshold),
			OnSpeechStart:    c.tracker.BeginUtterance,
			Logger:           c.logger,
		})
		if err != nil {
			return fmt.Errorf("segmenter setup failed: %w", err)
		}
	} else {
		c.marker = segment.NewMarkerSegmenter(SampleRate)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.stage.Run(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("transcription stage stopped", slog.String("error", err.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipe.Run(ctx, c.stage.Transcripts()); err != nil && ctx.Err() == nil {
			c.logger.Error("pipeline stopped", slog.String("error", err.Error()))
		}
	}()

	if c.segmenter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.segmenter.Run(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("segmenter stopped", slog.String("error", err.Error()))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for utt := range c.segmenter.Utterances() {
				if err := c.stage.Submit(ctx, utt); err != nil {
					c.logger.Error("utterance submit failed", slog.String("error", err.Error()))
				}
			}
		}()
	}

	c.logger.Info("session started",
		slog.String("model", init.Model),
		slog.Bool("stream", init.Stream),
		slog.Bool("server_vad", c.cfg.ServerVAD))

	readErr := c.readLoop(ctx)

	if c.segmenter != nil {
		c.segmenter.CloseInput()
	}
	if err := c.transcriber.Stop(); err != nil {
		c.logger.Warn("transcriber stop failed", slog.String("error", err.Error()))
	}
	cancel()
	wg.Wait()

	c.logger.Info("session ended")
	return readErr
}

// handshake reads messages until a session_init arrives. Other control
// messages before init are logged and dropped; binary frames are ignored.
func (c *Controller) handshake() (controlMessage, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return controlMessage{}, fmt.Errorf("connection closed before init: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed control message dropped", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != msgSessionInit {
			c.logger.Warn("control message before session_init dropped", slog.String("type", msg.Type))
			continue
		}
		return msg, nil
	}
}

// readLoop consumes frames and control messages until the connection
// closes. A read error is terminal for the session and is not an error of
// the loop itself when the client simply went away.
func (c *Controller) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			c.logger.Info("connection read ended", slog.String("error", err.Error()))
			return nil
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.handleAudio(ctx, data)
		case websocket.TextMessage:
			c.handleControl(data)
		}
	}
}

func (c *Controller) handleAudio(ctx context.Context, pcm []byte) {
	if c.segmenter != nil {
		frame, err := rtc.NewAudioFrame(pcm, SampleRate, 1)
		if err != nil {
			c.logger.Warn("dropping malformed audio frame", slog.String("error", err.Error()))
			return
		}
		if err := c.segmenter.Push(ctx, frame); err != nil {
			c.logger.Warn("frame push failed", slog.String("error", err.Error()))
		}
		return
	}
	c.marker.Append(pcm)
}

func (c *Controller) handleControl(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed control message dropped", slog.String("error", err.Error()))
		return
	}

	switch msg.Type {
	case msgActiveAudioStart:
		image := stripDataURI(msg.ImageBase64)
		if c.segmenter != nil {
			// In server-VAD mode the marker only refreshes the snapshot
			// latched at the next detected start of speech.
			c.segmenter.UpdateImage(image)
			return
		}
		epoch := c.tracker.BeginUtterance()
		c.marker.Start(epoch, image)
		c.logger.Debug("utterance started", slog.Uint64("epoch", epoch))

	case msgActiveAudioEnd:
		if c.marker == nil {
			return
		}
		utt, ok := c.marker.End()
		if !ok || len(utt.PCM) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.stage.Submit(ctx, utt); err != nil {
			c.logger.Error("utterance submit failed", slog.String("error", err.Error()))
		}

	case msgStopGeneration:
		c.tracker.CancelActive()
		c.logger.Debug("generation stop requested")

	default:
		c.logger.Warn("unknown control message dropped", slog.String("type", msg.Type))
	}
}

// send writes one JSON message, serializing concurrent writers. Write
// failures are logged; the read loop notices the dead connection.
func (c *Controller) send(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) upsertModelSet(set telemetry.ModelSet) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.cfg.Telemetry.UpsertModelSet(ctx, set); err != nil {
		c.logger.Warn("model set upsert failed", slog.String("error", err.Error()))
	}
}

// Transcription implements pipeline.Emitter.
func (c *Controller) Transcription(text string) {
	c.send(transcriptionMessage{Type: msgTranscription, Message: text})
}

// Chunk implements pipeline.Emitter.
func (c *Controller) Chunk(taskID string, chunk pipeline.Chunk) {
	c.send(assistantChunkMessage{Type: msgAssistantChunk, ID: taskID, Seq: chunk.Seq, Message: chunk.Text})
}

// AudioChunk implements pipeline.Emitter.
func (c *Controller) AudioChunk(taskID string, seq int, audio []byte) {
	c.send(assistantAudioChunkMessage{
		Type:        msgAssistantAudioChunk,
		ID:          taskID,
		Seq:         seq,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
	})
}

// Final implements pipeline.Emitter.
func (c *Controller) Final(taskID, text string, withAudio bool) {
	c.send(assistantFinalMessage{Type: msgAssistantFinal, ID: taskID, Message: text, Audio: withAudio})
}

// Response implements pipeline.Emitter.
func (c *Controller) Response(taskID, text string, audio []byte) {
	var encoded *string
	if audio != nil {
		s := base64.StdEncoding.EncodeToString(audio)
		encoded = &s
	}
	c.send(aiResponseMessage{Type: msgAIResponse, ID: taskID, Message: text, AudioBase64: encoded})
}

// Done implements pipeline.Emitter.
func (c *Controller) Done(taskID string) {
	c.send(assistantDoneMessage{Type: msgAssistantDone, ID: taskID})
}

// silenceThresholdFromMillis converts the client-requested silence window
// to the effective segmentation threshold, clamped to the floor.
func silenceThresholdFromMillis(ms int) time.Duration {
	if ms <= 0 {
		return segment.DefaultSilenceThreshold
	}
	d := time.Duration(ms)*time.Millisecond - silenceMargin
	if d < silenceFloor {
		d = silenceFloor
	}
	return d
}

// stripDataURI removes a "data:image/...;base64," prefix if present.
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
