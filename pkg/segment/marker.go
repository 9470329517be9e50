package segment

import (
	"bytes"
	"sync"
	"time"
)

// MarkerSegmenter is the passthrough variant used when the client performs
// its own voice-activity detection (or push-to-talk) and sends explicit
// start/end markers. It has two states, idle and recording, driven entirely
// by the markers; the image snapshot is latched at the start marker.
type MarkerSegmenter struct {
	mu         sync.Mutex
	recording  bool
	buf        bytes.Buffer
	image      string
	epoch      uint64
	sampleRate int
}

// NewMarkerSegmenter creates a marker-driven segmenter for 16-bit mono PCM
// at the given sample rate.
func NewMarkerSegmenter(sampleRate int) *MarkerSegmenter {
	return &MarkerSegmenter{sampleRate: sampleRate}
}

// Start begins a new utterance, discarding any partial buffer, and latches
// the image snapshot for this utterance.
func (m *MarkerSegmenter) Start(epoch uint64, imageBase64 string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = true
	m.buf.Reset()
	m.image = imageBase64
	m.epoch = epoch
}

// Append accumulates PCM while recording. Frames arriving outside a
// start/end pair are dropped.
func (m *MarkerSegmenter) Append(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return
	}
	m.buf.Write(pcm)
}

// Recording reports whether a start marker is open.
func (m *MarkerSegmenter) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// End closes the utterance and returns it. ok is false when no start marker
// was open (the end marker is dropped).
func (m *MarkerSegmenter) End() (utt Utterance, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return Utterance{}, false
	}
	m.recording = false

	pcm := make([]byte, m.buf.Len())
	copy(pcm, m.buf.Bytes())
	m.buf.Reset()

	samples := len(pcm) / 2
	duration := time.Duration(samples) * time.Second / time.Duration(m.sampleRate)
	return Utterance{PCM: pcm, ImageBase64: m.image, Duration: duration, Epoch: m.epoch}, true
}
