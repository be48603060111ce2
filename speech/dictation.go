package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/room4-2/chatai/audio"
)

// ErrNothingRecorded is returned when dictation stops before any audio arrived
var ErrNothingRecorded = errors.New("nothing recorded")

// Transcriber converts a WAV recording to text
type Transcriber interface {
	Transcribe(ctx context.Context, recording []byte) (string, error)
}

// Dictation records from a capture device until stopped, then transcribes
// the recording
type Dictation struct {
	dev audio.CaptureDevice
	stt Transcriber
	buf *audio.Buffer

	mu        sync.Mutex
	recording bool
	overflow  bool
}

// NewDictation creates a dictation recorder holding at most maxBytes of PCM
func NewDictation(dev audio.CaptureDevice, stt Transcriber, maxBytes int) *Dictation {
	return &Dictation{dev: dev, stt: stt, buf: audio.NewBuffer(maxBytes)}
}

// Start opens the device and begins buffering
func (d *Dictation) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recording {
		return audio.ErrRecorderRunning
	}
	d.buf.Clear()
	d.overflow = false
	if err := d.dev.Start(d.handleFrame); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	d.recording = true
	return nil
}

func (d *Dictation) handleFrame(samples []float32) {
	err := d.buf.Append(audio.PCM16Bytes(audio.Float32ToPCM16(samples)))
	if errors.Is(err, audio.ErrBufferFull) {
		d.mu.Lock()
		if !d.overflow {
			log.Printf("⚠️ Dictation buffer full (max %d bytes), dropping audio", d.buf.MaxSize())
		}
		d.overflow = true
		d.mu.Unlock()
	}
}

// Stop releases the device and transcribes what was recorded
func (d *Dictation) Stop(ctx context.Context) (string, error) {
	d.mu.Lock()
	if !d.recording {
		d.mu.Unlock()
		return "", ErrNothingRecorded
	}
	d.recording = false
	d.mu.Unlock()

	stopErr := d.dev.Stop()

	length := d.Recorded()
	pcm := d.buf.Flush()
	if len(pcm) == 0 {
		return "", errors.Join(ErrNothingRecorded, stopErr)
	}
	if stopErr != nil {
		log.Printf("⚠️ Failed to release microphone: %v", stopErr)
	}

	log.Printf("🎤 Transcribing %s of dictation (%d bytes)", length, len(pcm))
	return d.stt.Transcribe(ctx, audio.NewWAV(pcm))
}

// Recorded returns the length of audio buffered so far
func (d *Dictation) Recorded() time.Duration {
	return time.Duration(d.buf.Duration()) * time.Millisecond
}

// Recording reports whether dictation is in progress
func (d *Dictation) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}
