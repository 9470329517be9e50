// Package pipeline turns validated transcripts into assistant output. It owns
// the turn lifecycle: the pre-dispatch cancellation gate, buffered and
// streaming generation, sentence-chunk synthesis fan-out, the history policy,
// and per-turn telemetry.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
	"github.com/rumina-ai/rumina-go/pkg/ai/tts"
	"github.com/rumina-ai/rumina-go/pkg/history"
	"github.com/rumina-ai/rumina-go/pkg/telemetry"
	"github.com/rumina-ai/rumina-go/pkg/turn"
)

const (
	defaultMaxTokens   = 512
	defaultTemperature = 0.7

	// telemetryTimeout bounds each best-effort sink write.
	telemetryTimeout = 5 * time.Second
)

// Emitter delivers pipeline output to the client. The session controller
// implements it over the websocket; tests implement it in memory.
//
// Methods are called from the turn goroutine and from synthesis goroutines
// concurrently, so implementations must serialize their own writes.
type Emitter interface {
	// Transcription surfaces the user's validated transcript.
	Transcription(text string)

	// Chunk delivers one sentence chunk of streamed assistant text.
	Chunk(taskID string, c Chunk)

	// AudioChunk delivers synthesized audio for one sentence chunk. Chunks
	// may arrive out of seq order; the seq number restores ordering.
	AudioChunk(taskID string, seq int, audio []byte)

	// Final delivers the complete assistant text for a streamed turn.
	// withAudio is false when the turn went stale after generation and
	// synthesis was skipped or discarded.
	Final(taskID, text string, withAudio bool)

	// Response delivers a buffered turn's full text and audio in one
	// message. audio is nil when synthesis failed.
	Response(taskID, text string, audio []byte)

	// Done marks the end of a turn's output.
	Done(taskID string)
}

// Config assembles one session's pipeline.
type Config struct {
	Generator   llm.ResponseGenerator
	Synthesizer tts.Synthesizer
	Tracker     *turn.Tracker
	Ledger      *history.Ledger
	Emitter     Emitter

	// Telemetry defaults to a NopSink. Tokens may be nil; streamed turns
	// then record zero token counts.
	Telemetry telemetry.Sink
	Tokens    *TokenCounter

	SystemPrompt string
	Streaming    bool
	MaxTokens    int
	Temperature  float32

	SessionID  string
	ModelSetID string
	Logger     *slog.Logger
}

// Pipeline executes turns for one session, one task per transcript. A new
// turn may start while a superseded one is still unwinding a model call;
// the stale turn abandons its work at the next checkpoint, so a call that
// never returns stalls only its own task.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	turnIndex atomic.Int64
}

// New validates cfg and creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NopSink{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Run executes turns for each transcript until the channel closes or the
// context is cancelled. Each turn runs on its own goroutine so a stale
// turn blocked in a provider call cannot delay the current epoch; Run
// waits for all in-flight turns before returning.
func (p *Pipeline) Run(ctx context.Context, transcripts <-chan Transcript) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-transcripts:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.runTurn(ctx, tr)
			}()
		}
	}
}

// runTurn executes one turn end to end.
func (p *Pipeline) runTurn(ctx context.Context, tr Transcript) {
	task := turn.NewTask(tr.Epoch)
	p.cfg.Tracker.Bind(task)

	// Pre-dispatch gate. A transcript whose epoch was superseded while it
	// sat in the transcription backend produces no output at all.
	if task.Stale(p.cfg.Tracker) {
		p.logger.Info("turn superseded before dispatch",
			slog.String("task", task.ID),
			slog.Uint64("epoch", task.Epoch))
		return
	}

	p.cfg.Emitter.Transcription(tr.Text)

	userMsg := llm.Message{Role: llm.RoleUser, Content: tr.Text}
	req := llm.Request{
		Messages:    p.buildPrompt(userMsg),
		ImageBase64: tr.ImageBase64,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	start := time.Now()
	var outcome turnOutcome
	if p.cfg.Streaming {
		outcome = p.runStreamingTurn(ctx, task, req)
	} else {
		outcome = p.runBufferedTurn(ctx, task, req)
	}

	if outcome.text == "" {
		return
	}

	// Any turn that surfaced final text enters history, including a
	// final-without-audio downgrade. Turns abandoned mid-generation do not.
	p.cfg.Ledger.Append(userMsg, llm.Message{Role: llm.RoleAssistant, Content: outcome.text})

	p.record(telemetry.Turn{
		RequestID:    task.ID,
		SessionID:    p.cfg.SessionID,
		TurnIndex:    int(p.turnIndex.Add(1)) - 1,
		ModelSetID:   p.cfg.ModelSetID,
		STTLatency:   tr.Latency,
		Transcript:   tr.Text,
		VLMLatency:   outcome.vlmLatency,
		TokensIn:     outcome.tokensIn,
		TokensOut:    outcome.tokensOut,
		TokensPerSec: tokensPerSec(outcome.tokensOut, outcome.vlmLatency),
		TTSLatency:   outcome.ttsLatency,
		TotalLatency: time.Since(start) + tr.Latency,
	})
}

// turnOutcome carries what a turn handler produced. An empty text means the
// turn was abandoned and leaves no trace in history or telemetry.
type turnOutcome struct {
	text       string
	vlmLatency time.Duration
	tokensIn   int
	tokensOut  int
	ttsLatency time.Duration
}

// runBufferedTurn generates the full response, then synthesizes it in one
// call. Cancellation checkpoints sit after generation and after synthesis.
func (p *Pipeline) runBufferedTurn(ctx context.Context, task *turn.Task, req llm.Request) turnOutcome {
	genStart := time.Now()
	res, err := p.cfg.Generator.Generate(ctx, req)
	if err != nil {
		p.logger.Error("generation failed",
			slog.String("task", task.ID),
			slog.String("error", err.Error()))
		return turnOutcome{}
	}
	vlmLatency := time.Since(genStart)

	out := turnOutcome{
		text:       res.Content,
		vlmLatency: vlmLatency,
		tokensIn:   res.PromptTokens,
		tokensOut:  res.CompletionTokens,
	}

	// Post-generation checkpoint. The text is surfaced so the conversation
	// stays coherent, but no audio is produced for a superseded turn.
	if task.Stale(p.cfg.Tracker) {
		p.logger.Info("turn superseded after generation, skipping synthesis",
			slog.String("task", task.ID))
		p.cfg.Emitter.Final(task.ID, res.Content, false)
		p.cfg.Emitter.Done(task.ID)
		return out
	}

	ttsStart := time.Now()
	audio, err := p.cfg.Synthesizer.Synthesize(ctx, res.Content)
	if err != nil {
		p.logger.Error("synthesis failed",
			slog.String("task", task.ID),
			slog.String("error", err.Error()))
		audio = nil
	} else {
		out.ttsLatency = time.Since(ttsStart)
	}

	// Post-synthesis checkpoint. Completed audio for a superseded turn is
	// discarded rather than played over the newer utterance.
	if task.Stale(p.cfg.Tracker) {
		p.logger.Info("turn superseded after synthesis, dropping audio",
			slog.String("task", task.ID))
		p.cfg.Emitter.Final(task.ID, res.Content, false)
		p.cfg.Emitter.Done(task.ID)
		out.ttsLatency = 0
		return out
	}

	p.cfg.Emitter.Response(task.ID, res.Content, audio)
	p.cfg.Emitter.Done(task.ID)
	return out
}

// runStreamingTurn pulls generation fragments, cuts them into sentence
// chunks, and synthesizes each chunk on its own goroutine while generation
// continues. The staleness checkpoint runs before every chunk emission and
// again before every audio emission.
func (p *Pipeline) runStreamingTurn(ctx context.Context, task *turn.Task, req llm.Request) turnOutcome {
	genStart := time.Now()
	stream, err := p.cfg.Generator.StreamGenerate(ctx, req)
	if err != nil {
		p.logger.Error("stream start failed",
			slog.String("task", task.ID),
			slog.String("error", err.Error()))
		return turnOutcome{}
	}
	defer stream.Close()

	splitter := NewSentenceSplitter()
	var (
		full     []rune
		synthWG  sync.WaitGroup
		ttsNanos atomic.Int64
		aborted  bool
	)

recv:
	for {
		fragment, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Error("stream recv failed",
					slog.String("task", task.ID),
					slog.String("error", err.Error()))
			}
			break
		}
		full = append(full, []rune(fragment)...)
		for _, chunk := range splitter.Push(fragment) {
			if !p.emitChunk(ctx, task, chunk, &synthWG, &ttsNanos) {
				aborted = true
				break recv
			}
		}
	}

	if !aborted {
		if chunk, ok := splitter.Flush(); ok {
			if !p.emitChunk(ctx, task, chunk, &synthWG, &ttsNanos) {
				aborted = true
			}
		}
	}

	// All in-flight synthesis finishes before the final marker so the
	// client never receives audio after assistant_done.
	synthWG.Wait()

	if aborted {
		p.logger.Info("streamed turn superseded mid-generation",
			slog.String("task", task.ID))
		return turnOutcome{}
	}

	text := string(full)
	if text == "" {
		return turnOutcome{}
	}
	vlmLatency := time.Since(genStart)

	withAudio := true
	ttsLatency := time.Duration(ttsNanos.Load())
	if task.Stale(p.cfg.Tracker) {
		withAudio = false
		ttsLatency = 0
	}
	p.cfg.Emitter.Final(task.ID, text, withAudio)
	p.cfg.Emitter.Done(task.ID)

	return turnOutcome{
		text:       text,
		vlmLatency: vlmLatency,
		tokensIn:   p.countPrompt(req.Messages),
		tokensOut:  p.countText(text),
		ttsLatency: ttsLatency,
	}
}

// emitChunk surfaces one sentence chunk and fans its synthesis out. It
// returns false when the task went stale, which aborts the turn.
func (p *Pipeline) emitChunk(ctx context.Context, task *turn.Task, chunk Chunk, wg *sync.WaitGroup, ttsNanos *atomic.Int64) bool {
	if task.Stale(p.cfg.Tracker) {
		return false
	}
	p.cfg.Emitter.Chunk(task.ID, chunk)

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.synthesizeChunk(ctx, task, chunk, ttsNanos)
	}()
	return true
}

// synthesizeChunk synthesizes one chunk. A failure skips the chunk without
// affecting siblings; audio finished for a stale task is dropped.
func (p *Pipeline) synthesizeChunk(ctx context.Context, task *turn.Task, chunk Chunk, ttsNanos *atomic.Int64) {
	start := time.Now()
	audio, err := p.cfg.Synthesizer.Synthesize(ctx, chunk.Text)
	if err != nil {
		p.logger.Error("chunk synthesis failed",
			slog.String("task", task.ID),
			slog.Int("seq", chunk.Seq),
			slog.String("error", err.Error()))
		return
	}
	if task.Stale(p.cfg.Tracker) {
		return
	}
	ttsNanos.Add(int64(time.Since(start)))
	p.cfg.Emitter.AudioChunk(task.ID, chunk.Seq, audio)
}

// buildPrompt assembles system prompt, retained history, and the current
// user message. The user message joins the ledger only after the turn
// reaches final text.
func (p *Pipeline) buildPrompt(userMsg llm.Message) []llm.Message {
	snapshot := p.cfg.Ledger.Snapshot()
	msgs := make([]llm.Message, 0, len(snapshot)+2)
	if p.cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: p.cfg.SystemPrompt})
	}
	msgs = append(msgs, snapshot...)
	msgs = append(msgs, userMsg)
	return msgs
}

func (p *Pipeline) countPrompt(msgs []llm.Message) int {
	if p.cfg.Tokens == nil {
		return 0
	}
	return p.cfg.Tokens.CountMessages(msgs)
}

func (p *Pipeline) countText(text string) int {
	if p.cfg.Tokens == nil {
		return 0
	}
	return p.cfg.Tokens.Count(text)
}

// record writes one telemetry row, best effort.
func (p *Pipeline) record(t telemetry.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryTimeout)
	defer cancel()

	if err := p.cfg.Telemetry.RecordTurn(ctx, t); err != nil {
		p.logger.Warn("telemetry record failed",
			slog.String("request_id", t.RequestID),
			slog.String("error", err.Error()))
	}
}

func tokensPerSec(tokens int, d time.Duration) float64 {
	if d <= 0 || tokens <= 0 {
		return 0
	}
	return float64(tokens) / d.Seconds()
}
