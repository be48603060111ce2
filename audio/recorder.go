package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// ErrRecorderRunning is returned when starting a recorder twice
var ErrRecorderRunning = errors.New("recorder already running")

// CaptureDevice delivers float32 mono frames in [-1, 1] at SampleRate until
// stopped. Stop must release the underlying device.
type CaptureDevice interface {
	Start(onFrame func(samples []float32)) error
	Stop() error
}

// Recorder turns captured frames into base64 PCM16 payloads
type Recorder struct {
	dev     CaptureDevice
	onFrame func(encoded string)

	mu      sync.Mutex
	running bool
	active  atomic.Bool
	frames  atomic.Int64
}

// NewRecorder creates a recorder that emits every encoded frame to onFrame
func NewRecorder(dev CaptureDevice, onFrame func(encoded string)) *Recorder {
	return &Recorder{dev: dev, onFrame: onFrame}
}

// Start opens the capture device
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRecorderRunning
	}
	r.active.Store(true)
	if err := r.dev.Start(r.handleFrame); err != nil {
		r.active.Store(false)
		return fmt.Errorf("failed to start capture: %w", err)
	}
	r.running = true
	return nil
}

func (r *Recorder) handleFrame(samples []float32) {
	// Frames still in flight after Stop are dropped.
	if !r.active.Load() {
		return
	}
	encoded, err := EncodeFrame(samples)
	if err != nil {
		log.Printf("⚠️ Failed to encode audio frame: %v", err)
		return
	}
	r.frames.Add(1)
	if r.onFrame != nil {
		r.onFrame(encoded)
	}
}

// Stop stops emitting frames and releases the device. Safe to call more
// than once; only the first call reaches the device.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active.Store(false)
	if !r.running {
		return nil
	}
	r.running = false
	if err := r.dev.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture: %w", err)
	}
	return nil
}

// Running reports whether the recorder is capturing
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Frames returns how many frames have been emitted
func (r *Recorder) Frames() int64 {
	return r.frames.Load()
}
