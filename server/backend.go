package server

import (
	"context"
	"io"

	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
)

// ChatBackend opens a streamed completion. The returned body is an event
// stream of completion chunks terminated by [DONE]. Errors that happen
// before the first byte are returned directly so the relay can map upstream
// statuses.
type ChatBackend interface {
	Name() string
	Open(ctx context.Context, msgs []messages.ChatMessage) (io.ReadCloser, error)
}

const completionsFunction = "chat/completions"

type completionRequest struct {
	Model    string                 `json:"model"`
	Messages []messages.ChatMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
}

// GatewayBackend relays to an OpenAI-compatible completions endpoint
type GatewayBackend struct {
	client *gateway.Client
	model  string
}

// NewGatewayBackend creates a backend posting to client's chat/completions
func NewGatewayBackend(client *gateway.Client, model string) *GatewayBackend {
	return &GatewayBackend{client: client, model: model}
}

// Name identifies the backend in logs and metrics
func (b *GatewayBackend) Name() string {
	return "gateway"
}

// Open passes the upstream event stream through unchanged
func (b *GatewayBackend) Open(ctx context.Context, msgs []messages.ChatMessage) (io.ReadCloser, error) {
	return b.client.Stream(ctx, completionsFunction, completionRequest{
		Model:    b.model,
		Messages: msgs,
		Stream:   true,
	})
}
