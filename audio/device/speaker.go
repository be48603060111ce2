package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/room4-2/chatai/audio"
)

// oto allows a single context per process
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func outputContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   audio.SampleRate,
			ChannelCount: audio.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if otoErr == nil {
			<-ready
		}
	})
	return otoCtx, otoErr
}

// NewSpeaker opens the default output device as an audio.Output
func NewSpeaker() (*audio.Output, error) {
	ctx, err := outputContext()
	if err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	return audio.NewOutput(func(r io.Reader) audio.Player {
		return ctx.NewPlayer(r)
	}), nil
}
