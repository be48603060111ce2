package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Chat backends served by the relay
const (
	BackendGateway = "gateway"
	BackendGemini  = "gemini"
)

// DefaultSystemPrompt is prepended to every relayed conversation
const DefaultSystemPrompt = "You are a helpful AI assistant. Provide clear, concise, and accurate responses."

// Config holds all relay server configuration
type Config struct {
	Port            int
	RedisURL        string
	RedisPassword   string
	MaxSessions     int
	SessionTimeout  time.Duration
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration

	// Chat completion relay
	ChatBackend   string // "gateway" or "gemini"
	GatewayURL    string
	GatewayAPIKey string
	ChatModel     string
	GeminiAPIKey  string
	GeminiModel   string
	SystemPrompt  string

	// Realtime voice bridge
	RealtimeURL   string
	RealtimeModel string
	OpenAIAPIKey  string

	// Per-client requests allowed per RateWindow (0 disables)
	RateLimit  int
	RateWindow time.Duration
}

// ClientConfig holds the terminal client configuration
type ClientConfig struct {
	FunctionsURL  string
	APIKey        string
	Voice         string
	RealtimeURL   string
	RealtimeModel string
	// Relay makes voice sessions go through the relay's realtime bridge
	// instead of dialing the upstream with an ephemeral token
	Relay bool
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:            8080,
		RedisURL:        "localhost:6379",
		MaxSessions:     100,
		SessionTimeout:  30 * time.Minute,
		AllowedOrigins:  []string{"*"},
		KeepAlivePeriod: 30 * time.Second,
		ChatBackend:     BackendGateway,
		GatewayURL:      "https://ai.gateway.lovable.dev/v1",
		ChatModel:       "google/gemini-2.5-flash",
		GeminiModel:     "gemini-2.5-flash",
		SystemPrompt:    DefaultSystemPrompt,
		RealtimeURL:     "wss://api.openai.com/v1/realtime",
		RealtimeModel:   "gpt-4o-realtime-preview-2024-12-17",
		RateLimit:       60,
		RateWindow:      time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	// KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	if backend := os.Getenv("CHAT_BACKEND"); backend != "" {
		switch backend {
		case BackendGateway, BackendGemini:
			config.ChatBackend = backend
		default:
			return nil, fmt.Errorf("invalid CHAT_BACKEND: must be '%s' or '%s'", BackendGateway, BackendGemini)
		}
	}

	if url := os.Getenv("AI_GATEWAY_URL"); url != "" {
		config.GatewayURL = strings.TrimRight(url, "/")
	}
	config.GatewayAPIKey = os.Getenv("AI_GATEWAY_API_KEY")
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		config.ChatModel = model
	}
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.GeminiModel = model
	}
	if prompt := os.Getenv("SYSTEM_PROMPT"); prompt != "" {
		config.SystemPrompt = prompt
	}

	// Required: the key of the selected backend
	switch config.ChatBackend {
	case BackendGateway:
		if config.GatewayAPIKey == "" {
			return nil, fmt.Errorf("AI_GATEWAY_API_KEY environment variable is required for the %s backend", BackendGateway)
		}
	case BackendGemini:
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required for the %s backend", BackendGemini)
		}
	}

	if url := os.Getenv("REALTIME_URL"); url != "" {
		config.RealtimeURL = url
	}
	if model := os.Getenv("REALTIME_MODEL"); model != "" {
		config.RealtimeModel = model
	}
	// Optional: without it the realtime bridge is disabled
	config.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	if limit := os.Getenv("RATE_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
		}
		if l < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT: must not be negative")
		}
		config.RateLimit = l
	}

	// RATE_WINDOW (in seconds)
	if window := os.Getenv("RATE_WINDOW"); window != "" {
		w, err := strconv.Atoi(window)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_WINDOW: %w", err)
		}
		if w <= 0 {
			return nil, fmt.Errorf("invalid RATE_WINDOW: must be positive")
		}
		config.RateWindow = time.Duration(w) * time.Second
	}

	return config, nil
}

// LoadClientConfig loads the terminal client configuration
func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()

	config := &ClientConfig{
		FunctionsURL:  "http://localhost:8080/functions/v1",
		Voice:         "alloy",
		RealtimeURL:   "wss://api.openai.com/v1/realtime",
		RealtimeModel: "gpt-4o-realtime-preview-2024-12-17",
	}

	if url := os.Getenv("CHATAI_FUNCTIONS_URL"); url != "" {
		config.FunctionsURL = strings.TrimRight(url, "/")
	}
	if !strings.HasPrefix(config.FunctionsURL, "http://") && !strings.HasPrefix(config.FunctionsURL, "https://") {
		return nil, fmt.Errorf("invalid CHATAI_FUNCTIONS_URL: %q is not an http(s) URL", config.FunctionsURL)
	}
	config.APIKey = os.Getenv("CHATAI_API_KEY")

	if voice := os.Getenv("CHATAI_VOICE"); voice != "" {
		config.Voice = voice
	}
	if url := os.Getenv("REALTIME_URL"); url != "" {
		config.RealtimeURL = url
	}
	if model := os.Getenv("REALTIME_MODEL"); model != "" {
		config.RealtimeModel = model
	}

	if relay := os.Getenv("CHATAI_VOICE_RELAY"); relay != "" {
		r, err := strconv.ParseBool(relay)
		if err != nil {
			return nil, fmt.Errorf("invalid CHATAI_VOICE_RELAY: %w", err)
		}
		config.Relay = r
	}

	return config, nil
}

// RelayRealtimeURL is the WebSocket address of the relay's realtime bridge
func (c *ClientConfig) RelayRealtimeURL() string {
	url := c.FunctionsURL + "/realtime"
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
