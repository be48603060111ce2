package audio

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned when enqueueing into a closed queue
var ErrQueueClosed = errors.New("playback queue closed")

// PlaybackSink plays one WAV chunk, blocking until playback finishes or ctx
// is cancelled
type PlaybackSink interface {
	Play(ctx context.Context, wav []byte) error
}

// PlaybackQueue plays raw PCM16 chunks strictly in arrival order, one at a
// time. A chunk that fails to play is logged and skipped.
type PlaybackQueue struct {
	sink PlaybackSink

	mu      sync.Mutex
	pending [][]byte
	playing bool
	closed  bool
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{} // closed when the most recent loop returns
	onIdle  func()

	played atomic.Int64
	failed atomic.Int64
}

// NewPlaybackQueue creates a queue that plays through sink
func NewPlaybackQueue(sink PlaybackSink) *PlaybackQueue {
	return &PlaybackQueue{sink: sink}
}

// OnIdle registers fn to run each time the queue drains naturally. It is not
// called after Clear.
func (q *PlaybackQueue) OnIdle(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onIdle = fn
}

// Enqueue appends a chunk, starting the playback loop if it is idle
func (q *PlaybackQueue) Enqueue(pcm []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, pcm)
	if !q.playing {
		q.startLocked()
	}
	return nil
}

func (q *PlaybackQueue) startLocked() {
	q.playing = true
	q.gen++
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	prev := q.done
	done := make(chan struct{})
	q.done = done
	go q.loop(ctx, q.gen, prev, done)
}

func (q *PlaybackQueue) loop(ctx context.Context, gen uint64, prev, done chan struct{}) {
	defer close(done)

	// A loop abandoned by Clear may still be inside Play.
	if prev != nil {
		<-prev
	}

	for {
		q.mu.Lock()
		if q.gen != gen {
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.playing = false
			q.cancel()
			onIdle := q.onIdle
			q.mu.Unlock()
			if onIdle != nil {
				onIdle()
			}
			return
		}
		pcm := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := q.sink.Play(ctx, NewWAV(pcm)); err != nil {
			if ctx.Err() != nil {
				continue
			}
			q.failed.Add(1)
			log.Printf("⚠️ Failed to play audio chunk (%d bytes): %v", len(pcm), err)
			continue
		}
		q.played.Add(1)
	}
}

// Clear drops all pending chunks and stops the current playback
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *PlaybackQueue) clearLocked() {
	q.pending = nil
	if q.playing {
		q.gen++
		q.cancel()
		q.playing = false
	}
}

// Close clears the queue, rejects further chunks and waits for the playback
// loop to return
func (q *PlaybackQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.clearLocked()
	done := q.done
	q.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// Playing reports whether the playback loop is active
func (q *PlaybackQueue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Pending returns the number of chunks waiting to be played
func (q *PlaybackQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Played returns how many chunks finished playing
func (q *PlaybackQueue) Played() int64 {
	return q.played.Load()
}

// Failed returns how many chunks failed to play
func (q *PlaybackQueue) Failed() int64 {
	return q.failed.Load()
}
