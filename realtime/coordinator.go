// Package realtime runs a full-duplex voice session: microphone frames go
// out as input_audio_buffer.append events, response audio comes back as
// base64 PCM and is played through a per-session playback queue.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/room4-2/chatai/audio"
	"github.com/room4-2/chatai/messages"
)

var (
	// ErrAlreadyStarted is returned when Connect is called on a used Coordinator
	ErrAlreadyStarted = errors.New("voice session already started")
	// ErrDisconnected is returned when Disconnect wins a race with Connect
	ErrDisconnected = errors.New("voice session disconnected")
)

// DefaultInstructions is the assistant persona for voice sessions
const DefaultInstructions = "You are a helpful AI assistant. Be conversational, friendly, and concise. Speak naturally as if having a real conversation."

// Options configures a Coordinator. Callbacks run synchronously on the
// session's goroutines without the session lock held, so they may read
// Status, but they must not call Connect or Disconnect directly. Status
// changes are delivered in the order they happened.
type Options struct {
	Dial    Dialer
	Capture audio.CaptureDevice
	Sink    audio.PlaybackSink // closed on Disconnect if it implements io.Closer

	Instructions string
	Voice        string

	OnStatus func(Status)
	OnEvent  func(*messages.ServerEvent)
	OnError  func(error)
}

// Coordinator owns one voice session: transport, recorder and playback queue
type Coordinator struct {
	opts     Options
	recorder *audio.Recorder
	queue    *audio.PlaybackQueue

	mu            sync.Mutex
	status        Status
	ch            DuplexMessageChannel
	announced     bool
	awaitingDrain bool // response.audio.done seen while audio is still playing
	ended         bool
	done          chan struct{}

	statusQueue []Status // changes not yet delivered to OnStatus
	dispatching bool
}

// NewCoordinator creates an idle session
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}
	if opts.Capture == nil {
		return nil, fmt.Errorf("capture device cannot be nil")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("playback sink cannot be nil")
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}

	c := &Coordinator{opts: opts, status: StatusIdle}
	c.queue = audio.NewPlaybackQueue(opts.Sink)
	c.queue.OnIdle(c.handleDrained)
	c.recorder = audio.NewRecorder(opts.Capture, c.sendAudio)
	return c, nil
}

// Connect dials the transport, announces the session configuration and
// starts capturing. Any failure leaves the session in StatusError.
func (c *Coordinator) Connect(ctx context.Context) error {
	defer c.flushStatus()

	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()
	c.flushStatus()

	ch, err := c.opts.Dial(ctx)
	if err != nil {
		err = fmt.Errorf("failed to connect: %w", err)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		_ = ch.Close()
		return ErrDisconnected
	}
	c.ch = ch
	c.setStatusLocked(StatusConnected)
	if err := c.announceLocked(); err != nil {
		c.mu.Unlock()
		c.flushStatus()
		c.fail(err)
		return err
	}
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()
	c.flushStatus()

	go c.receiveLoop(ch, done)

	if err := c.recorder.Start(); err != nil {
		c.fail(err)
		return err
	}
	if c.isEnded() {
		_ = c.recorder.Stop()
		return ErrDisconnected
	}

	log.Printf("🎧 Voice session connected")
	return nil
}

// announceLocked sends session.update once per session
func (c *Coordinator) announceLocked() error {
	if c.announced {
		return nil
	}
	cfg := messages.DefaultSessionConfig(c.opts.Instructions, c.opts.Voice)
	data, err := sonic.Marshal(messages.NewSessionUpdate(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal session update: %w", err)
	}
	if err := c.ch.Send(data); err != nil {
		return fmt.Errorf("failed to send session update: %w", err)
	}
	c.announced = true
	return nil
}

func (c *Coordinator) sendAudio(encoded string) {
	c.mu.Lock()
	ch := c.ch
	active := c.status.Active() && !c.ended
	c.mu.Unlock()
	if !active || ch == nil {
		return
	}

	data, err := sonic.Marshal(messages.NewInputAudioAppend(encoded))
	if err != nil {
		log.Printf("⚠️ Failed to marshal audio frame: %v", err)
		return
	}
	if err := ch.Send(data); err != nil && !c.isEnded() {
		log.Printf("⚠️ Failed to send audio frame: %v", err)
	}
}

func (c *Coordinator) receiveLoop(ch DuplexMessageChannel, done chan struct{}) {
	defer close(done)

	for {
		data, err := ch.Receive()
		if err != nil {
			if c.isEnded() {
				return
			}
			if errors.Is(err, ErrChannelClosed) {
				log.Printf("🔌 Voice session closed by remote")
				_ = c.teardown()
				c.setStatus(StatusDisconnected)
				return
			}
			c.fail(fmt.Errorf("transport error: %w", err))
			return
		}

		var ev messages.ServerEvent
		if err := sonic.Unmarshal(data, &ev); err != nil {
			log.Printf("⚠️ Failed to parse realtime event: %v", err)
			continue
		}
		c.handleEvent(&ev)
	}
}

func (c *Coordinator) handleEvent(ev *messages.ServerEvent) {
	defer c.flushStatus()

	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}

	switch ev.Type {
	case messages.TypeAudioDelta:
		if ev.Delta == "" {
			return
		}
		pcm, err := audio.DecodeBase64(ev.Delta)
		if err != nil {
			log.Printf("⚠️ Dropping audio delta: %v", err)
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.ended {
			return
		}
		c.awaitingDrain = false
		if err := c.queue.Enqueue(pcm); err != nil {
			log.Printf("⚠️ Failed to queue audio: %v", err)
			return
		}
		c.setStatusLocked(StatusSpeaking)

	case messages.TypeSpeechStarted:
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.ended {
			c.setStatusLocked(StatusListening)
		}

	case messages.TypeAudioDone:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.ended {
			return
		}
		if c.queue.Playing() {
			c.awaitingDrain = true
			return
		}
		c.setStatusLocked(StatusConnected)

	case messages.TypeError:
		if ev.Error != nil {
			log.Printf("⚠️ Realtime error event: %s", ev.Error.Message)
		}
	}
}

// handleDrained runs when the playback queue empties
func (c *Coordinator) handleDrained() {
	defer c.flushStatus()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended || !c.awaitingDrain {
		return
	}
	c.awaitingDrain = false
	c.setStatusLocked(StatusConnected)
}

// fail moves the session to StatusError, reports err and releases resources
func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(StatusError)
	c.mu.Unlock()
	c.flushStatus()

	log.Printf("❌ Voice session error: %v", err)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
	if terr := c.teardown(); terr != nil {
		log.Printf("⚠️ Voice session teardown: %v", terr)
	}
}

// teardown stops capture, closes the transport, clears playback and
// releases the sink. Every step runs even if an earlier one fails.
func (c *Coordinator) teardown() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	c.awaitingDrain = false
	ch := c.ch
	c.mu.Unlock()

	var errs []error
	if err := c.recorder.Stop(); err != nil {
		errs = append(errs, err)
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}
	if err := c.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := c.opts.Sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release audio output: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect ends the session. Safe to call more than once and from any
// state; only the first call releases resources.
func (c *Coordinator) Disconnect() error {
	err := c.teardown()

	c.mu.Lock()
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()
	c.flushStatus()

	if err != nil {
		log.Printf("⚠️ Voice session disconnect: %v", err)
	} else {
		log.Printf("👋 Voice session disconnected")
	}
	return err
}

// Done is closed when the receive loop exits; nil before Connect succeeds
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Status returns the current session state
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PendingAudio returns the number of received chunks not yet played
func (c *Coordinator) PendingAudio() int {
	return c.queue.Pending()
}

func (c *Coordinator) isEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *Coordinator) setStatus(s Status) {
	defer c.flushStatus()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(s)
}

func (c *Coordinator) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	if c.opts.OnStatus != nil {
		c.statusQueue = append(c.statusQueue, s)
	}
}

// flushStatus delivers queued status changes to OnStatus. It must be called
// without c.mu held. One goroutine delivers at a time; a caller that finds
// delivery in progress leaves its changes to that goroutine.
func (c *Coordinator) flushStatus() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.statusQueue) > 0 {
		s := c.statusQueue[0]
		c.statusQueue = c.statusQueue[1:]
		c.mu.Unlock()
		c.opts.OnStatus(s)
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}
