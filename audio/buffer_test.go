package audio

import (
	"errors"
	"testing"
)

func TestBuffer(t *testing.T) {
	b := NewBuffer(6)

	if err := b.Append([]byte{1, 2}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	chunk := []byte{3, 4}
	if err := b.Append(chunk); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	chunk[0] = 99

	if err := b.Append([]byte{5, 6, 7}); !errors.Is(err, ErrBufferFull) {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
	if b.Size() != 4 {
		t.Errorf("expected size 4, got %d", b.Size())
	}

	got := b.Flush()
	if string(got) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("unexpected flush %v", got)
	}
	if b.Size() != 0 || b.Flush() != nil {
		t.Error("expected empty buffer after flush")
	}
}

func TestBufferDuration(t *testing.T) {
	b := NewBuffer(1 << 20)
	_ = b.Append(make([]byte, 48000))
	if d := b.Duration(); d != 1000 {
		t.Errorf("expected 1000ms, got %d", d)
	}
	b.Clear()
	if b.Duration() != 0 {
		t.Error("expected 0 after Clear")
	}
}
