// Package llm defines the response-generation capability. A generator turns a
// prompt plus bounded conversation history (and an optional image snapshot)
// into either a complete result or a pull-based fragment stream.
package llm

import (
	"context"

	"github.com/rumina-ai/rumina-go/pkg/ai"
)

// LLM-specific error variables
var (
	// ErrRecoverable indicates a temporary generation failure that may succeed if retried.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent generation failure that will not succeed if retried.
	ErrFatal = ai.ErrFatal
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a chat conversation.
type Message struct {
	Role    Role
	Content string
}

// Request contains the full input for one generation call.
type Request struct {
	Messages    []Message
	ImageBase64 string // optional image snapshot; raw base64 or data URI
	MaxTokens   int
	Temperature float32
}

// Result is a complete, buffered generation outcome.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Stream is a pull-based sequence of text fragments. The consumer drives
// progress by calling Recv; Recv returns io.EOF after the final fragment.
// Close releases the underlying call and must be safe to call at any point,
// including mid-stream when the consumer abandons iteration.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// ResponseGenerator is the main interface for response-generation providers.
type ResponseGenerator interface {
	// Generate performs a buffered generation call and returns the full text
	// with token usage metadata.
	Generate(ctx context.Context, req Request) (*Result, error)

	// StreamGenerate starts an incremental generation call.
	StreamGenerate(ctx context.Context, req Request) (Stream, error)

	// ModelName returns the catalog identifier for this provider.
	ModelName() string
}
