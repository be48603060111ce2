// Package speech calls the hosted speech-to-text and text-to-speech
// functions and records push-to-talk dictation.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/room4-2/chatai/audio"
	"github.com/room4-2/chatai/gateway"
)

var (
	// ErrNoTranscription is returned when speech-to-text yields no text
	ErrNoTranscription = errors.New("no transcription received")
	// ErrNoAudioContent is returned when text-to-speech yields no audio
	ErrNoAudioContent = errors.New("no audio content received")
	// ErrEmptyText is returned when asked to synthesize blank text
	ErrEmptyText = errors.New("text cannot be empty")
)

const (
	DefaultVoice = "alloy"

	DefaultSTTFunction = "speech-to-text"
	DefaultTTSFunction = "text-to-speech"
)

type transcribeRequest struct {
	Audio string `json:"audio"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Client talks to the speech functions
type Client struct {
	gw          *gateway.Client
	sttFunction string
	ttsFunction string
}

// NewClient creates a speech client using the default function names
func NewClient(gw *gateway.Client) *Client {
	return &Client{
		gw:          gw,
		sttFunction: DefaultSTTFunction,
		ttsFunction: DefaultTTSFunction,
	}
}

// Transcribe sends recorded audio and returns the recognized text
func (c *Client) Transcribe(ctx context.Context, recording []byte) (string, error) {
	encoded, err := audio.EncodeBase64(recording)
	if err != nil {
		return "", err
	}

	var resp transcribeResponse
	if err := c.gw.PostJSON(ctx, c.sttFunction, transcribeRequest{Audio: encoded}, &resp); err != nil {
		return "", fmt.Errorf("speech-to-text failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoTranscription
	}
	return text, nil
}

// Synthesize converts text to speech with voice (DefaultVoice when empty)
// and returns the encoded audio (MP3 from the hosted function)
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if voice == "" {
		voice = DefaultVoice
	}

	var resp synthesizeResponse
	if err := c.gw.PostJSON(ctx, c.ttsFunction, synthesizeRequest{Text: text, Voice: voice}, &resp); err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}
	if resp.AudioContent == "" {
		return nil, ErrNoAudioContent
	}
	return audio.DecodeBase64(resp.AudioContent)
}
