// Package gemini serves chat completions from the Gemini API, re-encoded as
// the same event stream the gateway backend produces.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"

	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
	"github.com/room4-2/chatai/stream"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

// ErrNoMessages is returned when a completion is requested without history
var ErrNoMessages = errors.New("no messages to complete")

// Completer streams completions from Gemini
type Completer struct {
	client *genai.Client
	model  string
}

// NewCompleter creates a Gemini client for model
func NewCompleter(ctx context.Context, apiKey, model string) (*Completer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Completer{client: client, model: model}, nil
}

// Name identifies the backend in logs and metrics
func (c *Completer) Name() string {
	return "gemini"
}

// Open starts a streamed completion of msgs. Failures before the first
// chunk are returned directly (upstream statuses as *gateway.StatusError);
// later failures abort the returned stream.
func (c *Completer) Open(ctx context.Context, msgs []messages.ChatMessage) (io.ReadCloser, error) {
	contents, system := toContents(msgs)
	if len(contents) == 0 {
		return nil, ErrNoMessages
	}

	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	log.Printf("📤 Gemini completion: %d message(s) with %s", len(contents), c.model)
	return encodeStream(c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg))
}

// toContents splits the conversation into Gemini turns and a system
// instruction. Assistant turns become model turns.
func toContents(msgs []messages.ChatMessage) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   *genai.Content
	)
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
		case "assistant", "model":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, system
}

// encodeStream pulls the first response synchronously, then copies the rest
// into a pipe as completion chunks terminated by [DONE]
func encodeStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) (io.ReadCloser, error) {
	next, stop := iter.Pull2(seq)

	first, err, ok := next()
	if ok && err != nil {
		stop()
		return nil, upstreamError(err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer stop()
		w := stream.NewWriter(pw)

		resp := first
		for ok {
			if err != nil {
				log.Printf("❌ Gemini stream error: %v", err)
				pw.CloseWithError(upstreamError(err))
				return
			}
			if text := resp.Text(); text != "" {
				if werr := w.WriteJSON(messages.NewDeltaChunk(text)); werr != nil {
					// reader went away
					return
				}
			}
			resp, err, ok = next()
		}

		if err := w.WriteJSON(messages.NewFinishChunk("stop")); err != nil {
			return
		}
		if err := w.WriteDone(); err != nil {
			return
		}
		pw.Close()
	}()
	return pr, nil
}

// upstreamError converts Gemini API errors to gateway status errors so the
// relay maps quota and rate limits the same way for every backend
func upstreamError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &gateway.StatusError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
