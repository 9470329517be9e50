package rtc

import (
	"fmt"
	"time"
)

// AudioFrame represents a fixed block of PCM audio as received from the
// client. Len(Data) == Samples * NumChannels * 2.
// All fields are immutable after creation; a frame is consumed exactly once
// by the segmenter and never shared between stages.
type AudioFrame struct {
	Data        []byte // 16-bit PCM, little-endian
	SampleRate  int    // 16 000 for client capture
	NumChannels int    // 1 or 2
}

// NewAudioFrame creates a new AudioFrame with the specified parameters.
// Data length must be a whole number of samples for the channel count.
func NewAudioFrame(data []byte, sampleRate, numChannels int) (*AudioFrame, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("AudioFrame sample rate must be positive, got %d", sampleRate)
	}
	if numChannels != 1 && numChannels != 2 {
		return nil, fmt.Errorf("AudioFrame channel count must be 1 or 2, got %d", numChannels)
	}
	if len(data) == 0 || len(data)%(numChannels*2) != 0 {
		return nil, fmt.Errorf("AudioFrame data length mismatch: %d bytes is not a whole number of %d-channel 16-bit samples",
			len(data), numChannels)
	}

	return &AudioFrame{
		Data:        data,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
	}, nil
}

// Samples returns the number of samples per channel in this frame.
func (f *AudioFrame) Samples() int {
	return len(f.Data) / (f.NumChannels * 2)
}

// Duration returns the playback duration represented by this frame.
func (f *AudioFrame) Duration() time.Duration {
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Clone creates a deep copy of the AudioFrame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	return &AudioFrame{
		Data:        data,
		SampleRate:  f.SampleRate,
		NumChannels: f.NumChannels,
	}
}
