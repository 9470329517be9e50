// Package vad provides the frame-level speech/silence classification that
// feeds the segmenter. The classifier is a plain function so sessions can
// plug in any binary decision (energy, WebRTC VAD, a model) without the
// segmentation state machine knowing the difference.
package vad

import (
	"encoding/binary"
	"math"

	"github.com/rumina-ai/rumina-go/pkg/rtc"
)

// DefaultEnergyThreshold matches 16 kHz microphone capture at typical
// browser gain.
const DefaultEnergyThreshold = 0.01

// Classifier reports whether a single frame contains speech.
type Classifier func(frame *rtc.AudioFrame) bool

// RMS computes the root-mean-square level of 16-bit little-endian PCM,
// normalized to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// EnergyClassifier returns a Classifier that treats a frame as speech when
// its RMS level exceeds threshold. Pass DefaultEnergyThreshold unless the
// capture path is known to be hotter or quieter.
func EnergyClassifier(threshold float64) Classifier {
	return func(frame *rtc.AudioFrame) bool {
		return RMS(frame.Data) > threshold
	}
}
