package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16
	// FrameSize is the number of samples per captured frame
	FrameSize = 4096

	// encodeChunk bounds each write into the base64 encoder
	encodeChunk = 0x8000
)

// Float32ToPCM16 converts samples in [-1, 1] to signed 16-bit integers.
// Input is clamped first; negative values scale by 32768, the rest by 32767,
// and the result is truncated toward zero. NaN maps to 0.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		if v < 0 {
			out[i] = int16(v * 32768)
		} else {
			out[i] = int16(v * 32767)
		}
	}
	return out
}

// PCM16Bytes serializes samples as little-endian bytes
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 parses little-endian 16-bit samples; an odd trailing byte is ignored
func BytesToPCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// BytesToFloat32 parses little-endian 16-bit samples into [-1, 1)
func BytesToFloat32(data []byte) []float32 {
	samples := BytesToPCM16(data)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// EncodeBase64 encodes data in fixed-size sub-chunks through a streaming
// encoder. The output is identical to a one-shot encoding.
func EncodeBase64(data []byte) (string, error) {
	var buf bytes.Buffer
	buf.Grow(base64.StdEncoding.EncodedLen(len(data)))

	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	for i := 0; i < len(data); i += encodeChunk {
		end := min(i+encodeChunk, len(data))
		if _, err := enc.Write(data[i:end]); err != nil {
			return "", fmt.Errorf("failed to encode audio: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}
	return buf.String(), nil
}

// EncodeFrame converts one captured float32 frame to base64 PCM16
func EncodeFrame(samples []float32) (string, error) {
	return EncodeBase64(PCM16Bytes(Float32ToPCM16(samples)))
}

// DecodeBase64 decodes a base64 audio payload
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return data, nil
}
