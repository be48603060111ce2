package audio

import (
	"errors"
	"testing"
)

// fakeMic replays fixed frames on Start and counts Stop calls
type fakeMic struct {
	frames   [][]float32
	onFrame  func([]float32)
	starts   int
	stops    int
	startErr error
}

func (m *fakeMic) Start(onFrame func([]float32)) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.starts++
	m.onFrame = onFrame
	for _, f := range m.frames {
		onFrame(f)
	}
	return nil
}

func (m *fakeMic) Stop() error {
	m.stops++
	return nil
}

func TestRecorderEmitsEncodedFrames(t *testing.T) {
	mic := &fakeMic{frames: [][]float32{{1, -1}, {0.5, 0}}}
	var got []string
	rec := NewRecorder(mic, func(encoded string) { got = append(got, encoded) })

	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rec.Start(); !errors.Is(err, ErrRecorderRunning) {
		t.Errorf("expected ErrRecorderRunning, got %v", err)
	}
	if len(got) != 2 || rec.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}

	raw, _ := DecodeBase64(got[0])
	if s := BytesToPCM16(raw); s[0] != 32767 || s[1] != -32768 {
		t.Errorf("unexpected samples %v", s)
	}
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	mic := &fakeMic{}
	emitted := 0
	rec := NewRecorder(mic, func(string) { emitted++ })

	_ = rec.Start()
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if mic.stops != 1 {
		t.Errorf("expected device to be stopped once, got %d", mic.stops)
	}
	if rec.Running() {
		t.Error("expected recorder to be stopped")
	}

	// a late callback from the audio thread is dropped
	mic.onFrame([]float32{0.1})
	if emitted != 0 {
		t.Errorf("expected no frames after Stop, got %d", emitted)
	}
}

func TestRecorderStartFailure(t *testing.T) {
	denied := errors.New("permission denied")
	rec := NewRecorder(&fakeMic{startErr: denied}, nil)
	if err := rec.Start(); !errors.Is(err, denied) {
		t.Errorf("expected wrapped device error, got %v", err)
	}
	if rec.Running() {
		t.Error("expected recorder not to be running")
	}
}
