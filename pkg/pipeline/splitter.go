package pipeline

// Chunk is a terminator-bounded slice of generated text, the unit of
// incremental synthesis. Sequence numbers are zero-based, gap-free, and
// assigned in generation order.
type Chunk struct {
	Seq  int
	Text string
}

// sentenceTerminators close a chunk. Japanese and Western sentence-final
// punctuation.
var sentenceTerminators = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'.': true,
	'!': true,
	'?': true,
}

// SentenceSplitter accumulates streamed text fragments and cuts a Chunk
// whenever a sentence terminator is appended. Not safe for concurrent use;
// one splitter serves one generation stream.
type SentenceSplitter struct {
	buf []rune
	seq int
}

// NewSentenceSplitter creates an empty splitter.
func NewSentenceSplitter() *SentenceSplitter {
	return &SentenceSplitter{}
}

// Push appends a fragment and returns the chunks it completed, possibly
// none. A fragment may close several sentences at once.
func (s *SentenceSplitter) Push(fragment string) []Chunk {
	var chunks []Chunk
	for _, r := range fragment {
		s.buf = append(s.buf, r)
		if sentenceTerminators[r] {
			chunks = append(chunks, s.cut())
		}
	}
	return chunks
}

// Flush returns any trailing unterminated text as a final chunk.
func (s *SentenceSplitter) Flush() (Chunk, bool) {
	if len(s.buf) == 0 {
		return Chunk{}, false
	}
	return s.cut(), true
}

func (s *SentenceSplitter) cut() Chunk {
	chunk := Chunk{Seq: s.seq, Text: string(s.buf)}
	s.seq++
	s.buf = s.buf[:0]
	return chunk
}
