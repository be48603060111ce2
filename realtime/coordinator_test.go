package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/room4-2/chatai/audio"
	"github.com/room4-2/chatai/messages"
)

type fakeChannel struct {
	mu       sync.Mutex
	sent     []map[string]any
	incoming chan []byte
	errs     chan error
	closed   chan struct{}
	once     sync.Once
	closes   int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan []byte, 16),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakeChannel) Send(data []byte) error {
	select {
	case <-f.closed:
		return ErrChannelClosed
	default:
	}
	var m map[string]any
	if err := sonic.Unmarshal(data, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) Receive() ([]byte, error) {
	select {
	case data := <-f.incoming:
		return data, nil
	case err := <-f.errs:
		return nil, err
	case <-f.closed:
		return nil, ErrChannelClosed
	}
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeChannel) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i], _ = m["type"].(string)
	}
	return out
}

func (f *fakeChannel) push(t *testing.T, ev any) {
	t.Helper()
	data, err := sonic.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	f.incoming <- data
}

type fakeMic struct {
	mu      sync.Mutex
	onFrame func([]float32)
	stops   int
}

func (m *fakeMic) Start(onFrame func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = onFrame
	return nil
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *fakeMic) emit(frame []float32) {
	m.mu.Lock()
	fn := m.onFrame
	m.mu.Unlock()
	fn(frame)
}

func (m *fakeMic) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// blockingSink holds every chunk until release is closed
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	closes  int
}

func (s *blockingSink) Play(ctx context.Context, wav []byte) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *blockingSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type harness struct {
	coord *Coordinator
	ch    *fakeChannel
	mic   *fakeMic
	sink  *blockingSink

	mu       sync.Mutex
	statuses []Status
	errs     []error
}

func newHarness(t *testing.T, dialErr error) *harness {
	t.Helper()
	h := &harness{
		ch:   newFakeChannel(),
		mic:  &fakeMic{},
		sink: &blockingSink{release: make(chan struct{})},
	}
	coord, err := NewCoordinator(Options{
		Dial: func(ctx context.Context) (DuplexMessageChannel, error) {
			if dialErr != nil {
				return nil, dialErr
			}
			return h.ch, nil
		},
		Capture: h.mic,
		Sink:    h.sink,
		OnStatus: func(s Status) {
			h.mu.Lock()
			h.statuses = append(h.statuses, s)
			h.mu.Unlock()
		},
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	h.coord = coord
	t.Cleanup(func() { _ = coord.Disconnect() })
	return h
}

func (h *harness) waitStatus(t *testing.T, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.coord.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, have %q", want, h.coord.Status())
}

func (h *harness) errCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

func audioDelta() *messages.ServerEvent {
	pcm := audio.PCM16Bytes([]int16{1, 2, 3, 4})
	return &messages.ServerEvent{Type: messages.TypeAudioDelta, Delta: base64.StdEncoding.EncodeToString(pcm)}
}

func TestConnectAnnouncesSessionOnce(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := h.coord.Connect(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	h.mic.emit([]float32{0.5, -0.5})
	h.mic.emit([]float32{0})

	types := h.ch.sentTypes()
	want := []string{messages.TypeSessionUpdate, messages.TypeInputAudioAppend, messages.TypeInputAudioAppend}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], types[i])
		}
	}

	h.ch.mu.Lock()
	session, _ := h.ch.sent[0]["session"].(map[string]any)
	h.ch.mu.Unlock()
	if session["voice"] != "alloy" || session["input_audio_format"] != "pcm16" {
		t.Errorf("unexpected session config: %v", session)
	}

	h.mu.Lock()
	statuses := append([]Status(nil), h.statuses...)
	h.mu.Unlock()
	if len(statuses) < 2 || statuses[0] != StatusConnecting || statuses[1] != StatusConnected {
		t.Errorf("unexpected status sequence %v", statuses)
	}
}

func TestAudioDoneWaitsForPlaybackToDrain(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	h.ch.push(t, &messages.ServerEvent{Type: messages.TypeSpeechStarted})
	h.waitStatus(t, StatusListening)

	h.ch.push(t, audioDelta())
	h.waitStatus(t, StatusSpeaking)

	h.ch.push(t, &messages.ServerEvent{Type: messages.TypeAudioDone})
	time.Sleep(50 * time.Millisecond)
	if s := h.coord.Status(); s != StatusSpeaking {
		t.Fatalf("expected to keep speaking while audio plays, got %q", s)
	}

	close(h.sink.release)
	h.waitStatus(t, StatusConnected)
}

func TestAudioDoneWhenIdleReturnsToConnected(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h.ch.push(t, &messages.ServerEvent{Type: messages.TypeSpeechStarted})
	h.waitStatus(t, StatusListening)

	h.ch.push(t, &messages.ServerEvent{Type: messages.TypeAudioDone})
	h.waitStatus(t, StatusConnected)
}

func TestDisconnectReleasesEverythingOnce(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h.ch.push(t, &messages.ServerEvent{Type: messages.TypeSpeechStarted})
	h.waitStatus(t, StatusListening)

	for i := 0; i < 3; i++ {
		h.ch.push(t, audioDelta())
	}
	h.waitStatus(t, StatusSpeaking)
	deadline := time.Now().Add(2 * time.Second)
	for h.coord.PendingAudio() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.coord.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := h.coord.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}

	if h.coord.Status() != StatusDisconnected {
		t.Errorf("expected disconnected, got %q", h.coord.Status())
	}
	if n := h.mic.stopCount(); n != 1 {
		t.Errorf("expected capture device stopped once, got %d", n)
	}
	if n := h.sink.closeCount(); n != 1 {
		t.Errorf("expected sink released once, got %d", n)
	}
	if h.coord.PendingAudio() != 0 {
		t.Errorf("expected playback queue cleared, got %d pending", h.coord.PendingAudio())
	}
	h.ch.mu.Lock()
	closes := h.ch.closes
	h.ch.mu.Unlock()
	if closes != 1 {
		t.Errorf("expected transport closed once, got %d", closes)
	}

	select {
	case <-h.coord.Done():
	case <-time.After(2 * time.Second):
		t.Error("receive loop did not exit")
	}
}

func TestDialFailureMovesToError(t *testing.T) {
	refused := errors.New("connection refused")
	h := newHarness(t, refused)

	err := h.coord.Connect(context.Background())
	if !errors.Is(err, refused) {
		t.Fatalf("expected dial error, got %v", err)
	}
	if h.coord.Status() != StatusError {
		t.Errorf("expected error status, got %q", h.coord.Status())
	}
	if h.errCount() != 1 {
		t.Errorf("expected error to be reported once, got %d", h.errCount())
	}
}

func TestTransportErrorMovesToError(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	h.ch.errs <- errors.New("connection reset by peer")
	h.waitStatus(t, StatusError)

	if h.errCount() != 1 {
		t.Errorf("expected error to be reported, got %d", h.errCount())
	}
	if n := h.mic.stopCount(); n != 1 {
		t.Errorf("expected capture to be stopped, got %d", n)
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	h.ch.errs <- ErrChannelClosed
	h.waitStatus(t, StatusDisconnected)

	if h.errCount() != 0 {
		t.Errorf("expected a normal close not to be reported as an error")
	}
	if n := h.mic.stopCount(); n != 1 {
		t.Errorf("expected capture to be stopped, got %d", n)
	}
}

func TestMalformedEventIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	h.ch.incoming <- []byte("{not json")
	h.ch.push(t, &messages.ServerEvent{Type: messages.TypeSpeechStarted})
	h.waitStatus(t, StatusListening)
}

func TestOnStatusCanReadStatus(t *testing.T) {
	ch := newFakeChannel()
	var (
		coord *Coordinator
		mu    sync.Mutex
		seen  []Status
	)
	coord, err := NewCoordinator(Options{
		Dial:    func(ctx context.Context) (DuplexMessageChannel, error) { return ch, nil },
		Capture: &fakeMic{},
		Sink:    &blockingSink{release: make(chan struct{})},
		OnStatus: func(s Status) {
			current := coord.Status()
			mu.Lock()
			seen = append(seen, current)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	t.Cleanup(func() { _ = coord.Disconnect() })

	errc := make(chan error, 1)
	go func() { errc <- coord.Connect(context.Background()) }()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect blocked while OnStatus read Status")
	}

	ch.push(t, &messages.ServerEvent{Type: messages.TypeSpeechStarted})
	deadline := time.Now().Add(2 * time.Second)
	for coord.Status() != StatusListening && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		_ = coord.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect blocked while OnStatus read Status")
	}

	// the receive loop may still be delivering an earlier change
	lastSeen := func() []Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]Status(nil), seen...)
	}
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := lastSeen(); len(got) > 0 && got[len(got)-1] == StatusDisconnected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := lastSeen()
	if len(got) < 4 || got[0] != StatusConnecting || got[len(got)-1] != StatusDisconnected {
		t.Errorf("unexpected observed statuses %v", got)
	}
}
