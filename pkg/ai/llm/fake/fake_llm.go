package fake

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
)

// FakeGenerator is a scripted ResponseGenerator for testing.
//
// Gate, when set, blocks Generate (and the first Recv of a stream) until the
// channel is closed or yields, letting tests interleave a barge-in with an
// in-flight generation call.
type FakeGenerator struct {
	Text      string   // buffered result content
	Fragments []string // streamed fragments, in order
	TokensIn  int
	TokensOut int
	Err       error // returned by Generate/StreamGenerate when set

	Gate <-chan struct{}

	mu        sync.Mutex
	generates int
	streams   int
}

// NewFakeGenerator creates a fake generator with a fixed buffered answer.
func NewFakeGenerator(text string) *FakeGenerator {
	return &FakeGenerator{Text: text, TokensIn: 8, TokensOut: 4}
}

// GenerateCalls reports how many buffered generations were requested.
func (f *FakeGenerator) GenerateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generates
}

// StreamCalls reports how many streaming generations were requested.
func (f *FakeGenerator) StreamCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

// Generate returns the scripted buffered result.
func (f *FakeGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	f.mu.Lock()
	f.generates++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &llm.Result{
		Content:          f.Text,
		PromptTokens:     f.TokensIn,
		CompletionTokens: f.TokensOut,
	}, nil
}

// StreamGenerate returns a stream over the scripted fragments.
func (f *FakeGenerator) StreamGenerate(ctx context.Context, req llm.Request) (llm.Stream, error) {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return &fakeStream{ctx: ctx, fragments: f.Fragments, gate: f.Gate}, nil
}

// ModelName returns the catalog identifier.
func (f *FakeGenerator) ModelName() string { return "fake-llm" }

type fakeStream struct {
	ctx       context.Context
	fragments []string
	gate      <-chan struct{}
	pos       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.closed {
		return "", fmt.Errorf("recv on closed stream")
	}
	if s.gate != nil && s.pos == 0 {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	frag := s.fragments[s.pos]
	s.pos++
	return frag, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}
