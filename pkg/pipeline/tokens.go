package pipeline

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/rumina-ai/rumina-go/pkg/ai/llm"
)

// perMessageOverhead approximates the chat-format framing tokens added per
// message by OpenAI-style chat endpoints.
const perMessageOverhead = 4

// TokenCounter estimates token usage for streamed turns, where the provider
// reports no usage metadata. The encoding is resolved lazily on first use;
// unknown models fall back to cl100k_base.
type TokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for the given model name.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (c *TokenCounter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return
			}
		}
		c.enc = enc
	})
	return c.enc
}

// Count returns the token count of text, or 0 if no encoding is available.
func (c *TokenCounter) Count(text string) int {
	enc := c.encoding()
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages estimates the prompt token count for a chat request.
func (c *TokenCounter) CountMessages(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.Count(m.Content) + perMessageOverhead
	}
	return total
}
