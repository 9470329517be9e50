// Package wav encodes and decodes minimal RIFF/WAVE containers around raw
// 16-bit little-endian PCM. Transcription backends take WAV uploads; the
// rest of the system works on bare PCM.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const headerSize = 44

// Header describes the PCM payload of a WAV container.
type Header struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int
}

// Encode wraps pcm in a WAV container.
func Encode(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	blockAlign := channels * bitsPerSample / 8
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// Decode splits a simple WAV container into its header and PCM payload. It
// handles the canonical 44-byte layout Encode produces; exotic chunk orders
// are rejected.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < headerSize {
		return Header{}, nil, fmt.Errorf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("not a RIFF/WAVE container")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Header{}, nil, fmt.Errorf("unsupported chunk layout")
	}

	h := Header{
		NumChannels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if headerSize+dataSize > len(data) {
		return Header{}, nil, fmt.Errorf("data chunk size %d exceeds payload", dataSize)
	}
	return h, data[headerSize : headerSize+dataSize], nil
}
