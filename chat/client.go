// Package chat runs conversation turns against the hosted completion and
// image endpoints, streaming assistant replies into a Conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
	"github.com/room4-2/chatai/stream"
)

// ErrStreamInterrupted wraps transport failures that happen after the
// completion stream has started; the partial reply is kept
var ErrStreamInterrupted = errors.New("stream interrupted")

// Default function names below the gateway base URL
const (
	DefaultChatFunction  = "chat"
	DefaultImageFunction = "generate-image"
)

// Options configures a Client
type Options struct {
	ChatFunction  string
	ImageFunction string
	// ReadSize bounds the size of each body chunk handed to the decoder
	ReadSize int
}

// Client sends conversation turns
type Client struct {
	gw            *gateway.Client
	chatFunction  string
	imageFunction string
	readSize      int
}

// NewClient creates a chat client on top of a gateway client
func NewClient(gw *gateway.Client, opts Options) *Client {
	if opts.ChatFunction == "" {
		opts.ChatFunction = DefaultChatFunction
	}
	if opts.ImageFunction == "" {
		opts.ImageFunction = DefaultImageFunction
	}
	return &Client{
		gw:            gw,
		chatFunction:  opts.ChatFunction,
		imageFunction: opts.ImageFunction,
		readSize:      opts.ReadSize,
	}
}

// ImageResult is a generated image and its caption
type ImageResult struct {
	ImageURL string
	Text     string
}

// Send runs one turn: it appends the user message, then either generates an
// image or streams a completion into a new assistant message. onDelta (may be
// nil) observes every fragment as it is applied.
//
// A failure before the stream starts leaves no assistant message behind. A
// failure mid-stream keeps whatever text was received and returns an error
// wrapping ErrStreamInterrupted.
func (c *Client) Send(ctx context.Context, conv *Conversation, text string, onDelta stream.DeltaFunc) (Message, error) {
	if conv.Streaming() {
		return Message{}, ErrTurnInProgress
	}
	conv.AddUser(text)

	if IsImageRequest(text) {
		img, err := c.GenerateImage(ctx, text, false)
		if err != nil {
			log.Printf("❌ Image generation failed: %v", err)
			return Message{}, err
		}
		reply := Message{Role: RoleAssistant, Content: img.Text, ImageURL: img.ImageURL}
		if err := conv.AddAssistant(reply.Content, reply.ImageURL); err != nil {
			return Message{}, err
		}
		return reply, nil
	}

	return c.complete(ctx, conv, onDelta)
}

func (c *Client) complete(ctx context.Context, conv *Conversation, onDelta stream.DeltaFunc) (Message, error) {
	history := conv.Messages()
	req := messages.ChatRequest{Messages: make([]messages.ChatMessage, 0, len(history))}
	for _, m := range history {
		req.Messages = append(req.Messages, messages.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := c.gw.Stream(ctx, c.chatFunction, req)
	if err != nil {
		log.Printf("❌ Chat request failed: %v", err)
		return Message{}, err
	}
	defer body.Close()

	if err := conv.OpenAssistant(); err != nil {
		return Message{}, err
	}

	dec := stream.NewDecoder(func(delta, accumulated string) {
		_ = conv.SetOpenContent(accumulated)
		if onDelta != nil {
			onDelta(delta, accumulated)
		}
	})

	n, err := stream.Pump(ctx, stream.FromReader(body, c.readSize), dec)
	conv.CloseAssistant()

	reply := Message{Role: RoleAssistant, Content: dec.Content()}
	if err != nil {
		if removed := conv.DiscardEmpty(); removed > 0 {
			log.Printf("🧹 Discarded %d empty message(s)", removed)
		}
		log.Printf("⚠️ Stream interrupted after %d bytes, %d deltas: %v", n, dec.Deltas(), err)
		return reply, fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
	}
	if dec.Deltas() == 0 {
		conv.DiscardEmpty()
	}
	return reply, nil
}

// GenerateImage asks the image endpoint for a picture of prompt
func (c *Client) GenerateImage(ctx context.Context, prompt string, enhance bool) (*ImageResult, error) {
	var resp messages.ImageResponse
	req := messages.ImageRequest{Prompt: prompt, EnhancePrompt: enhance}
	if err := c.gw.PostJSON(ctx, c.imageFunction, req, &resp); err != nil {
		return nil, err
	}
	if resp.ImageURL == "" {
		return nil, fmt.Errorf("failed to generate image: empty image URL")
	}
	return &ImageResult{ImageURL: resp.ImageURL, Text: resp.Text}, nil
}
