package vad

import (
	"encoding/binary"
	"testing"

	"github.com/rumina-ai/rumina-go/pkg/rtc"
)

func pcmFrame(t *testing.T, amplitude int16, samples int) *rtc.AudioFrame {
	t.Helper()
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(amplitude))
	}
	frame, err := rtc.NewAudioFrame(data, 16000, 1)
	if err != nil {
		t.Fatalf("NewAudioFrame() error = %v", err)
	}
	return frame
}

func TestRMS(t *testing.T) {
	if got := RMS(make([]byte, 320)); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}

	loud := pcmFrame(t, 16000, 160)
	if got := RMS(loud.Data); got < 0.4 {
		t.Errorf("RMS(loud) = %f, want >= 0.4", got)
	}
}

func TestEnergyClassifier(t *testing.T) {
	classify := EnergyClassifier(DefaultEnergyThreshold)

	if classify(pcmFrame(t, 0, 160)) {
		t.Error("silent frame classified as speech")
	}
	if !classify(pcmFrame(t, 8000, 160)) {
		t.Error("loud frame classified as silence")
	}
	if classify(pcmFrame(t, 100, 160)) {
		t.Error("near-silent frame classified as speech")
	}
}
