package audio

import (
	"encoding/base64"
	"math"
	"testing"
)

func TestFloat32ToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"half positive", 0.5, 16383},
		{"half negative", -0.5, -16384},
		{"zero", 0, 0},
		{"clamped high", 1.7, 32767},
		{"clamped low", -3, -32768},
		{"nan", float32(math.NaN()), 0},
		{"tiny negative truncates toward zero", -0.00001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Float32ToPCM16([]float32{tt.in})
			if got[0] != tt.want {
				t.Errorf("Float32ToPCM16(%v) = %d, want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	encoded, err := EncodeFrame([]float32{1.0, -1.0, 0.5, 0.0})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	raw, err := DecodeBase64(encoded)
	if err != nil {
		t.Fatalf("DecodeBase64 failed: %v", err)
	}

	want := []int16{32767, -32768, 16383, 0}
	got := BytesToPCM16(raw)
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	// little-endian layout
	if raw[0] != 0xFF || raw[1] != 0x7F || raw[2] != 0x00 || raw[3] != 0x80 {
		t.Errorf("unexpected byte layout % x", raw[:4])
	}
}

func TestEncodeBase64MatchesOneShot(t *testing.T) {
	for _, size := range []int{0, 1, 2, 3, encodeChunk - 1, encodeChunk, encodeChunk + 1, 3*encodeChunk + 7} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 31)
		}
		got, err := EncodeBase64(data)
		if err != nil {
			t.Fatalf("size %d: EncodeBase64 failed: %v", size, err)
		}
		if want := base64.StdEncoding.EncodeToString(data); got != want {
			t.Errorf("size %d: chunked encoding differs from one-shot", size)
		}
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	if _, err := DecodeBase64("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestBytesToFloat32(t *testing.T) {
	got := BytesToFloat32(PCM16Bytes([]int16{-32768, 0, 16384}))
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if n := len(BytesToFloat32([]byte{1, 2, 3})); n != 1 {
		t.Errorf("expected odd byte to be ignored, got %d samples", n)
	}
}
