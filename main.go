package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/chatai/config"
	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/gemini"
	"github.com/room4-2/chatai/metrics"
	"github.com/room4-2/chatai/realtime"
	"github.com/room4-2/chatai/server"
	"github.com/room4-2/chatai/session"
)

const openAIBaseURL = "https://api.openai.com/v1"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	rdb := session.NewRedisClient(cfg.RedisURL, cfg.RedisPassword)

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create chat backend: %v", err)
	}

	opts := server.Options{
		Backend: backend,
		Limiter: server.NewRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow),
		Metrics: m,
	}

	// Realtime voice needs an upstream key
	if cfg.OpenAIAPIKey != "" {
		dial, err := realtime.UpstreamDialer(cfg.RealtimeURL, cfg.RealtimeModel, cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatalf("Failed to configure realtime bridge: %v", err)
		}
		opts.Sessions = session.NewManager(cfg, dial, rdb, m)
		go opts.Sessions.StartCleanupRoutine(ctx)

		opts.Tokens, err = gateway.NewClient(gateway.Config{
			BaseURL: openAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Timeout: 30 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to create token client: %v", err)
		}
	} else {
		log.Println("⚠️ OPENAI_API_KEY not set, realtime voice disabled")
	}

	srv := server.NewServer(cfg, opts)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if rdb != nil && opts.Sessions == nil {
			rdb.Close()
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	<-stopped
	log.Println("Server stopped")
}

func newBackend(ctx context.Context, cfg *config.Config) (server.ChatBackend, error) {
	switch cfg.ChatBackend {
	case config.BackendGemini:
		return gemini.NewCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		gw, err := gateway.NewClient(gateway.Config{
			BaseURL: cfg.GatewayURL,
			APIKey:  cfg.GatewayAPIKey,
		})
		if err != nil {
			return nil, err
		}
		return server.NewGatewayBackend(gw, cfg.ChatModel), nil
	}
}
