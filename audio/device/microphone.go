package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/room4-2/chatai/audio"
)

// Microphone captures mono float32 audio from the default input device
// and delivers it in fixed-size frames
type Microphone struct {
	frameSize int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending []float32
}

// NewMicrophone creates a microphone that emits frames of frameSize samples
// (audio.FrameSize when zero)
func NewMicrophone(frameSize int) *Microphone {
	if frameSize <= 0 {
		frameSize = audio.FrameSize
	}
	return &Microphone{frameSize: frameSize}
}

// Start opens the default capture device. onFrame runs on the audio thread.
func (m *Microphone) Start(onFrame func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("microphone already started")
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxConfig, func(message string) {
		log.Printf("🎙️ malgo: %s", message)
	})
	if err != nil {
		return fmt.Errorf("failed to init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = audio.Channels
	deviceConfig.SampleRate = audio.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.collect(input, onFrame)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	m.ctx = ctx
	m.device = device
	log.Printf("🎙️ Microphone started (%d Hz, %d-sample frames)", audio.SampleRate, m.frameSize)
	return nil
}

// collect re-slices the device's variable-size periods into fixed frames
func (m *Microphone) collect(input []byte, onFrame func([]float32)) {
	for i := 0; i+4 <= len(input); i += 4 {
		m.pending = append(m.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
	}
	for len(m.pending) >= m.frameSize {
		frame := make([]float32, m.frameSize)
		copy(frame, m.pending)
		m.pending = append(m.pending[:0], m.pending[m.frameSize:]...)
		onFrame(frame)
	}
}

// Stop stops capture and releases the device and its context. Safe to call
// when not started.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	device, ctx := m.device, m.ctx
	m.device, m.ctx = nil, nil
	m.mu.Unlock()

	if device == nil {
		return nil
	}

	var errs []error
	if err := device.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop microphone: %w", err))
	}
	device.Uninit()
	if err := ctx.Uninit(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release audio context: %w", err))
	}
	ctx.Free()
	m.pending = nil

	log.Printf("🎙️ Microphone stopped")
	return errors.Join(errs...)
}
