package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rumina-ai/rumina-go/pkg/ai/stt/fake"
	"github.com/rumina-ai/rumina-go/pkg/segment"
)

func runStage(t *testing.T, stage *TranscriptionStage) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = stage.Run(ctx) }()
	return cancel
}

func recvTranscript(t *testing.T, stage *TranscriptionStage) Transcript {
	t.Helper()
	select {
	case tr := <-stage.Transcripts():
		return tr
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transcript")
		return Transcript{}
	}
}

func TestStagePairsResultsWithEpochs(t *testing.T) {
	transcriber := fake.NewFakeTranscriber("first answer", "second answer")
	if err := transcriber.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer transcriber.Stop()

	stage := NewTranscriptionStage(transcriber, nil)
	cancel := runStage(t, stage)
	defer cancel()

	ctx := context.Background()
	if err := stage.Submit(ctx, segment.Utterance{PCM: []byte{1}, Epoch: 1, ImageBase64: "img-one"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := stage.Submit(ctx, segment.Utterance{PCM: []byte{2}, Epoch: 2}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	tr := recvTranscript(t, stage)
	if tr.Text != "first answer" || tr.Epoch != 1 || tr.ImageBase64 != "img-one" {
		t.Errorf("first transcript = %+v", tr)
	}

	tr = recvTranscript(t, stage)
	if tr.Text != "second answer" || tr.Epoch != 2 || tr.ImageBase64 != "" {
		t.Errorf("second transcript = %+v", tr)
	}
}

func TestStageSuppressesInvalidTranscripts(t *testing.T) {
	transcriber := fake.NewFakeTranscriber("   ", "ああああああああ", "a real question")
	if err := transcriber.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer transcriber.Stop()

	stage := NewTranscriptionStage(transcriber, nil)
	cancel := runStage(t, stage)
	defer cancel()

	ctx := context.Background()
	for epoch := uint64(1); epoch <= 3; epoch++ {
		if err := stage.Submit(ctx, segment.Utterance{PCM: []byte{0}, Epoch: epoch}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	// The two degenerate results consume their pending entries silently; the
	// only transcript delivered belongs to the third epoch.
	tr := recvTranscript(t, stage)
	if tr.Text != "a real question" || tr.Epoch != 3 {
		t.Errorf("transcript = %+v", tr)
	}

	select {
	case extra, ok := <-stage.Transcripts():
		if ok {
			t.Errorf("unexpected extra transcript %+v", extra)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStageClosesOutputWhenTranscriberStops(t *testing.T) {
	transcriber := fake.NewFakeTranscriber()
	if err := transcriber.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stage := NewTranscriptionStage(transcriber, nil)
	done := make(chan error, 1)
	go func() { done <- stage.Run(context.Background()) }()

	if err := transcriber.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after transcriber stop")
	}

	if _, ok := <-stage.Transcripts(); ok {
		t.Error("transcript channel still open after Run returned")
	}
}
