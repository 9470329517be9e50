package openai

import (
	"context"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/rumina-ai/rumina-go/pkg/ai"
	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
)

// ChatGenerator implements llm.ResponseGenerator over the chat-completions
// API, with vision input attached to the latest user message.
type ChatGenerator struct {
	client *gopenai.Client
	model  string
}

// NewChatGenerator creates a generator from the shared config.
func NewChatGenerator(cfg Config) (*ChatGenerator, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &ChatGenerator{client: cfg.newClient(), model: cfg.LLMModel}, nil
}

// Generate performs a buffered completion.
func (g *ChatGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.buildRequest(req, false))
	if err != nil {
		return nil, ai.NewRecoverableError(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}
	return &llm.Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// StreamGenerate starts an incremental completion.
func (g *ChatGenerator) StreamGenerate(ctx context.Context, req llm.Request) (llm.Stream, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.buildRequest(req, true))
	if err != nil {
		return nil, ai.NewRecoverableError(err, "chat completion stream failed")
	}
	return &chatStream{stream: stream}, nil
}

// ModelName returns the catalog identifier.
func (g *ChatGenerator) ModelName() string { return g.model }

func (g *ChatGenerator) buildRequest(req llm.Request, stream bool) gopenai.ChatCompletionRequest {
	messages := make([]gopenai.ChatCompletionMessage, 0, len(req.Messages))
	for i, msg := range req.Messages {
		m := gopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		// The image snapshot rides on the newest user message as a data URI
		// part alongside the transcript text.
		if req.ImageBase64 != "" && i == len(req.Messages)-1 && msg.Role == llm.RoleUser {
			m.Content = ""
			m.MultiContent = []gopenai.ChatMessagePart{
				{Type: gopenai.ChatMessagePartTypeText, Text: msg.Content},
				{
					Type: gopenai.ChatMessagePartTypeImageURL,
					ImageURL: &gopenai.ChatMessageImageURL{
						URL:    "data:image/jpeg;base64," + req.ImageBase64,
						Detail: gopenai.ImageURLDetailAuto,
					},
				},
			}
		}
		messages = append(messages, m)
	}

	return gopenai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// chatStream adapts the SDK stream to llm.Stream. Recv skips role-only and
// empty deltas and surfaces io.EOF unchanged.
type chatStream struct {
	stream *gopenai.ChatCompletionStream
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
