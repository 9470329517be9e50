package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
	llmfake "github.com/rumina-ai/rumina-go/pkg/ai/llm/fake"
	ttsfake "github.com/rumina-ai/rumina-go/pkg/ai/tts/fake"
	"github.com/rumina-ai/rumina-go/pkg/history"
	"github.com/rumina-ai/rumina-go/pkg/telemetry"
	"github.com/rumina-ai/rumina-go/pkg/turn"
)

// emitterEvent is one recorded Emitter call, in arrival order.
type emitterEvent struct {
	kind      string // transcription, chunk, audio, final, response, done
	seq       int
	text      string
	audio     []byte
	withAudio bool
}

type recordEmitter struct {
	mu     sync.Mutex
	events []emitterEvent
}

func (r *recordEmitter) add(e emitterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordEmitter) Transcription(text string) {
	r.add(emitterEvent{kind: "transcription", text: text})
}

func (r *recordEmitter) Chunk(taskID string, c Chunk) {
	r.add(emitterEvent{kind: "chunk", seq: c.Seq, text: c.Text})
}

func (r *recordEmitter) AudioChunk(taskID string, seq int, audio []byte) {
	r.add(emitterEvent{kind: "audio", seq: seq, audio: audio})
}

func (r *recordEmitter) Final(taskID, text string, withAudio bool) {
	r.add(emitterEvent{kind: "final", text: text, withAudio: withAudio})
}

func (r *recordEmitter) Response(taskID, text string, audio []byte) {
	r.add(emitterEvent{kind: "response", text: text, audio: audio})
}

func (r *recordEmitter) Done(taskID string) {
	r.add(emitterEvent{kind: "done"})
}

func (r *recordEmitter) snapshot() []emitterEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emitterEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordEmitter) byKind(kind string) []emitterEvent {
	var out []emitterEvent
	for _, e := range r.snapshot() {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

type captureSink struct {
	mu    sync.Mutex
	turns []telemetry.Turn
}

func (s *captureSink) UpsertModelSet(context.Context, telemetry.ModelSet) error { return nil }

func (s *captureSink) RecordTurn(_ context.Context, t telemetry.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return nil
}

func (s *captureSink) Close() {}

func (s *captureSink) recorded() []telemetry.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

type pipelineFixture struct {
	pipeline *Pipeline
	tracker  *turn.Tracker
	ledger   *history.Ledger
	emitter  *recordEmitter
	synth    *ttsfake.FakeSynthesizer
	sink     *captureSink
}

func newFixture(t *testing.T, gen llm.ResponseGenerator, streaming bool) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		tracker: turn.NewTracker(),
		ledger:  history.NewLedger(0),
		emitter: &recordEmitter{},
		synth:   ttsfake.NewFakeSynthesizer(),
		sink:    &captureSink{},
	}
	f.pipeline = New(Config{
		Generator:    gen,
		Synthesizer:  f.synth,
		Tracker:      f.tracker,
		Ledger:       f.ledger,
		Emitter:      f.emitter,
		Telemetry:    f.sink,
		SystemPrompt: "You are a helpful assistant.",
		Streaming:    streaming,
		SessionID:    "sess-test",
		ModelSetID:   "fake-stt/fake-llm/fake-tts:single",
	})
	return f
}

func TestBufferedTurnEmitsResponseAndRecordsHistory(t *testing.T) {
	gen := llmfake.NewFakeGenerator("The mug is on the desk.")
	f := newFixture(t, gen, false)

	epoch := f.tracker.BeginUtterance()
	f.pipeline.runTurn(context.Background(), Transcript{Text: "Where is my mug?", Epoch: epoch})

	events := f.emitter.snapshot()
	if len(events) != 3 {
		t.Fatalf("got %d events %+v, want 3", len(events), events)
	}
	if events[0].kind != "transcription" || events[0].text != "Where is my mug?" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].kind != "response" || events[1].text != "The mug is on the desk." {
		t.Errorf("event 1 = %+v", events[1])
	}
	if string(events[1].audio) != "pcm:The mug is on the desk." {
		t.Errorf("response audio = %q", events[1].audio)
	}
	if events[2].kind != "done" {
		t.Errorf("event 2 = %+v", events[2])
	}

	msgs := f.ledger.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("ledger has %d entries, want 2", len(msgs))
	}
	if msgs[0].Role != llm.RoleUser || msgs[0].Content != "Where is my mug?" {
		t.Errorf("ledger[0] = %+v", msgs[0])
	}
	if msgs[1].Role != llm.RoleAssistant || msgs[1].Content != "The mug is on the desk." {
		t.Errorf("ledger[1] = %+v", msgs[1])
	}
}

func TestStaleBeforeDispatchProducesNothing(t *testing.T) {
	gen := llmfake.NewFakeGenerator("never spoken")
	f := newFixture(t, gen, false)

	stale := f.tracker.BeginUtterance()
	f.tracker.BeginUtterance()

	f.pipeline.runTurn(context.Background(), Transcript{Text: "old question", Epoch: stale})

	if n := gen.GenerateCalls(); n != 0 {
		t.Errorf("generator called %d times for a stale transcript", n)
	}
	if events := f.emitter.snapshot(); len(events) != 0 {
		t.Errorf("stale transcript emitted %+v", events)
	}
	if n := f.ledger.Len(); n != 0 {
		t.Errorf("ledger has %d entries, want 0", n)
	}
}

func TestBufferedBargeInAfterGenerationSkipsSynthesis(t *testing.T) {
	gate := make(chan struct{})
	gen := llmfake.NewFakeGenerator("interrupted answer")
	gen.Gate = gate
	f := newFixture(t, gen, false)

	epoch := f.tracker.BeginUtterance()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.pipeline.runTurn(context.Background(), Transcript{Text: "first question", Epoch: epoch})
	}()

	// Barge in while generation is still gated, then let it complete.
	waitFor(t, func() bool { return gen.GenerateCalls() == 1 })
	f.tracker.BeginUtterance()
	close(gate)
	<-done

	if calls := f.synth.Calls(); len(calls) != 0 {
		t.Errorf("synthesized %v for a superseded turn", calls)
	}
	finals := f.emitter.byKind("final")
	if len(finals) != 1 {
		t.Fatalf("got %d finals, want 1", len(finals))
	}
	if finals[0].withAudio {
		t.Error("final for superseded turn carries audio")
	}
	if finals[0].text != "interrupted answer" {
		t.Errorf("final text = %q", finals[0].text)
	}

	// The text still reached the client, so it joins history.
	msgs := f.ledger.Snapshot()
	if len(msgs) != 2 || msgs[1].Content != "interrupted answer" {
		t.Errorf("ledger = %+v", msgs)
	}
}

func TestStreamingTurnChunksAndFinal(t *testing.T) {
	gen := llmfake.NewFakeGenerator("")
	gen.Fragments = []string{"Hello there", ". How are you? Fi", "ne."}
	f := newFixture(t, gen, true)

	epoch := f.tracker.BeginUtterance()
	f.pipeline.runTurn(context.Background(), Transcript{Text: "hi", Epoch: epoch})

	chunks := f.emitter.byKind("chunk")
	wantTexts := []string{"Hello there.", " How are you?", " Fine."}
	if len(chunks) != len(wantTexts) {
		t.Fatalf("got %d chunks %+v", len(chunks), chunks)
	}
	for i, want := range wantTexts {
		if chunks[i].seq != i || chunks[i].text != want {
			t.Errorf("chunk %d = %+v, want seq=%d text=%q", i, chunks[i], i, want)
		}
	}

	audio := f.emitter.byKind("audio")
	if len(audio) != len(wantTexts) {
		t.Fatalf("got %d audio chunks, want %d", len(audio), len(wantTexts))
	}
	got := make(map[int]string, len(audio))
	for _, a := range audio {
		got[a.seq] = string(a.audio)
	}
	for i, want := range wantTexts {
		if got[i] != "pcm:"+want {
			t.Errorf("audio seq %d = %q", i, got[i])
		}
	}

	events := f.emitter.snapshot()
	last, prev := events[len(events)-1], events[len(events)-2]
	if prev.kind != "final" || last.kind != "done" {
		t.Errorf("turn ended with %q then %q, want final then done", prev.kind, last.kind)
	}
	if !prev.withAudio || prev.text != "Hello there. How are you? Fine." {
		t.Errorf("final = %+v", prev)
	}

	msgs := f.ledger.Snapshot()
	if len(msgs) != 2 || msgs[1].Content != "Hello there. How are you? Fine." {
		t.Errorf("ledger = %+v", msgs)
	}
}

func TestStreamingBargeInMidGenerationAbortsTurn(t *testing.T) {
	gate := make(chan struct{})
	gen := llmfake.NewFakeGenerator("")
	gen.Fragments = []string{"One.", " Two."}
	gen.Gate = gate
	f := newFixture(t, gen, true)

	epoch := f.tracker.BeginUtterance()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.pipeline.runTurn(context.Background(), Transcript{Text: "first", Epoch: epoch})
	}()

	waitFor(t, func() bool { return gen.StreamCalls() == 1 })
	f.tracker.BeginUtterance()
	close(gate)
	<-done

	if calls := f.synth.Calls(); len(calls) != 0 {
		t.Errorf("synthesized %v for an aborted turn", calls)
	}
	for _, kind := range []string{"chunk", "audio", "final", "done"} {
		if events := f.emitter.byKind(kind); len(events) != 0 {
			t.Errorf("aborted turn emitted %s events %+v", kind, events)
		}
	}
	if n := f.ledger.Len(); n != 0 {
		t.Errorf("ledger has %d entries, want 0", n)
	}
	if turns := f.sink.recorded(); len(turns) != 0 {
		t.Errorf("aborted turn recorded telemetry %+v", turns)
	}
}

func TestStreamingChunkSynthesisFailureSkipsOnlyThatChunk(t *testing.T) {
	gen := llmfake.NewFakeGenerator("")
	gen.Fragments = []string{"Good.", " Bad.", " Ugly."}
	f := newFixture(t, gen, true)
	f.synth.FailText = " Bad."

	epoch := f.tracker.BeginUtterance()
	f.pipeline.runTurn(context.Background(), Transcript{Text: "go", Epoch: epoch})

	audio := f.emitter.byKind("audio")
	if len(audio) != 2 {
		t.Fatalf("got %d audio chunks, want 2", len(audio))
	}
	seqs := map[int]bool{}
	for _, a := range audio {
		seqs[a.seq] = true
	}
	if !seqs[0] || !seqs[2] || seqs[1] {
		t.Errorf("audio seqs = %v, want 0 and 2 only", seqs)
	}

	finals := f.emitter.byKind("final")
	if len(finals) != 1 || !finals[0].withAudio {
		t.Errorf("finals = %+v", finals)
	}
}

func TestTurnTelemetryRecorded(t *testing.T) {
	gen := llmfake.NewFakeGenerator("forty-two")
	gen.TokensIn = 12
	gen.TokensOut = 3
	f := newFixture(t, gen, false)

	for i, q := range []string{"first?", "second?"} {
		epoch := f.tracker.BeginUtterance()
		f.pipeline.runTurn(context.Background(), Transcript{
			Text:    q,
			Epoch:   epoch,
			Latency: 20 * time.Millisecond,
		})

		turns := f.sink.recorded()
		if len(turns) != i+1 {
			t.Fatalf("after turn %d: %d records", i, len(turns))
		}
		rec := turns[i]
		if rec.TurnIndex != i {
			t.Errorf("turn index = %d, want %d", rec.TurnIndex, i)
		}
		if rec.Transcript != q {
			t.Errorf("transcript = %q, want %q", rec.Transcript, q)
		}
		if rec.SessionID != "sess-test" || rec.ModelSetID != "fake-stt/fake-llm/fake-tts:single" {
			t.Errorf("ids = %q / %q", rec.SessionID, rec.ModelSetID)
		}
		if rec.TokensIn != 12 || rec.TokensOut != 3 {
			t.Errorf("tokens = %d/%d", rec.TokensIn, rec.TokensOut)
		}
		if rec.STTLatency != 20*time.Millisecond {
			t.Errorf("stt latency = %v", rec.STTLatency)
		}
		if rec.TTSLatency <= 0 {
			t.Errorf("tts latency = %v, want > 0", rec.TTSLatency)
		}
	}
}

func TestRunStartsNewTurnWhileStaleTurnInFlight(t *testing.T) {
	gate := make(chan struct{})
	gen := llmfake.NewFakeGenerator("held answer")
	gen.Gate = gate
	f := newFixture(t, gen, false)

	transcripts := make(chan Transcript, 2)
	runDone := make(chan error, 1)
	go func() { runDone <- f.pipeline.Run(context.Background(), transcripts) }()

	epoch1 := f.tracker.BeginUtterance()
	transcripts <- Transcript{Text: "first question", Epoch: epoch1}
	waitFor(t, func() bool { return gen.GenerateCalls() == 1 })

	// The user speaks again while the first generation is still in flight.
	// The second turn must start generating without waiting for the first.
	epoch2 := f.tracker.BeginUtterance()
	transcripts <- Transcript{Text: "second question", Epoch: epoch2}
	waitFor(t, func() bool { return gen.GenerateCalls() == 2 })

	close(gate)
	close(transcripts)
	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The superseded turn downgrades to text only; the current one completes.
	finals := f.emitter.byKind("final")
	if len(finals) != 1 || finals[0].withAudio {
		t.Errorf("finals = %+v, want one without audio", finals)
	}
	responses := f.emitter.byKind("response")
	if len(responses) != 1 || string(responses[0].audio) != "pcm:held answer" {
		t.Errorf("responses = %+v", responses)
	}
	if done := f.emitter.byKind("done"); len(done) != 2 {
		t.Errorf("got %d done events, want 2", len(done))
	}
}

func TestRunDrainsChannelUntilClose(t *testing.T) {
	gen := llmfake.NewFakeGenerator("ack")
	f := newFixture(t, gen, false)

	transcripts := make(chan Transcript, 2)
	epoch1 := f.tracker.BeginUtterance()
	transcripts <- Transcript{Text: "one", Epoch: epoch1}
	close(transcripts)

	if err := f.pipeline.Run(context.Background(), transcripts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := gen.GenerateCalls(); n != 1 {
		t.Errorf("generator called %d times, want 1", n)
	}
	if done := f.emitter.byKind("done"); len(done) != 1 {
		t.Errorf("got %d done events, want 1", len(done))
	}
}
