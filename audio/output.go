package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrOutputClosed is returned by Play once the output has been closed,
// including for a chunk cut off by Close
var ErrOutputClosed = errors.New("audio output closed")

// Player plays one chunk of raw PCM16 on an output device
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	Err() error
	Close() error
}

// PlayerFactory creates a Player reading PCM16 from r
type PlayerFactory func(r io.Reader) Player

// Output is a PlaybackSink that plays WAV chunks one at a time through
// players created by a device backend
type Output struct {
	newPlayer PlayerFactory
	poll      time.Duration

	mu     sync.Mutex
	player Player
	closed bool
}

// NewOutput creates an output over newPlayer
func NewOutput(newPlayer PlayerFactory) *Output {
	return &Output{newPlayer: newPlayer, poll: 10 * time.Millisecond}
}

// Play decodes a mono 24 kHz PCM16 WAV chunk and blocks until it has been
// played, ctx is cancelled or the output is closed
func (o *Output) Play(ctx context.Context, wav []byte) error {
	header, pcm, err := DecodeWAV(wav)
	if err != nil {
		return err
	}
	if header.SampleRate != SampleRate || header.NumChannels != Channels {
		return fmt.Errorf("unsupported WAV format: %d Hz, %d channel(s)", header.SampleRate, header.NumChannels)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOutputClosed
	}
	player := o.newPlayer(bytes.NewReader(pcm))
	o.player = player
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if o.player == player {
			o.player = nil
		}
		o.mu.Unlock()
		_ = player.Close()
	}()

	player.Play()

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if o.isClosed() {
		return ErrOutputClosed
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// Close stops the current chunk and rejects further ones
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if o.player != nil {
		o.player.Pause()
	}
	return nil
}

func (o *Output) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
