package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/room4-2/chatai/gateway"
)

const (
	// DefaultSessionFunction mints ephemeral realtime tokens
	DefaultSessionFunction = "realtime-session"
	// DefaultURL is the upstream realtime endpoint
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"
)

type sessionTokenResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// FetchEphemeralToken asks the session function for a short-lived client secret
func FetchEphemeralToken(ctx context.Context, gw *gateway.Client, function string) (string, error) {
	if function == "" {
		function = DefaultSessionFunction
	}
	var resp sessionTokenResponse
	if err := gw.PostJSON(ctx, function, struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("failed to get ephemeral token: %w", err)
	}
	if resp.ClientSecret.Value == "" {
		return "", fmt.Errorf("failed to get ephemeral token: empty client secret")
	}
	return resp.ClientSecret.Value, nil
}

// UpstreamDialer returns a Dialer for the realtime endpoint at baseURL
// authenticated with token
func UpstreamDialer(baseURL, model, token string) (Dialer, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime URL: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("OpenAI-Beta", "realtime=v1")
	return DialWebSocket(u.String(), header), nil
}
