package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/room4-2/chatai/config"
	"github.com/room4-2/chatai/gateway"
	"github.com/room4-2/chatai/messages"
	"github.com/room4-2/chatai/metrics"
	"github.com/room4-2/chatai/session"
)

const (
	functionsPrefix = "/functions/v1"
	maxRequestBody  = 1 << 20
	copyBufferSize  = 32 * 1024

	// realtimeSessionsFunction mints ephemeral realtime client secrets
	realtimeSessionsFunction = "realtime/sessions"
)

// Client-facing error messages
const (
	msgRateLimited      = "Rate limit exceeded. Please try again later."
	msgCreditsExhausted = "AI credits exhausted. Please add credits to continue."
	msgServiceError     = "AI service error. Please try again."
)

// Options wires the relay's collaborators. Sessions and Tokens may be nil,
// which disables the realtime bridge and the token endpoint.
type Options struct {
	Sessions *session.Manager
	Backend  ChatBackend
	Limiter  *RateLimiter
	Tokens   *gateway.Client
	Metrics  *metrics.Metrics
}

// Server is the relay HTTP server
type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	backend        ChatBackend
	limiter        *RateLimiter
	tokens         *gateway.Client
	metrics        *metrics.Metrics
	config         *config.Config
}

// NewServer creates the relay server
func NewServer(cfg *config.Config, opts Options) *Server {
	s := &Server{
		sessionManager: opts.Sessions,
		backend:        opts.Backend,
		limiter:        opts.Limiter,
		tokens:         opts.Tokens,
		metrics:        opts.Metrics,
		config:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024, // 64KB for audio chunks
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	mux := http.NewServeMux()
	mux.Handle(functionsPrefix+"/chat", s.instrument("chat", http.HandlerFunc(s.handleChat)))
	mux.Handle(functionsPrefix+"/realtime", s.instrument("realtime", http.HandlerFunc(s.handleRealtime)))
	mux.Handle(functionsPrefix+"/realtime-session", s.instrument("realtime-session", http.HandlerFunc(s.handleRealtimeSession)))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.cors(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// no read/write timeouts: completions stream and bridged sockets stay open
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Handler returns the root handler, CORS included
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Relay server starting on port %d (chat backend: %s)", s.config.Port, s.backend.Name())
	log.Printf("📡 Chat endpoint: http://localhost:%d%s/chat", s.config.Port, functionsPrefix)
	if s.sessionManager != nil {
		log.Printf("📡 Realtime endpoint: ws://localhost:%d%s/realtime", s.config.Port, functionsPrefix)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	if s.sessionManager != nil {
		s.sessionManager.Shutdown()
	}
	return s.httpServer.Shutdown(ctx)
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// cors adds the browser headers and answers preflight requests
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.config.AllowedOrigins) == 0:
		case s.config.AllowedOrigins[0] == "*":
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(s.config.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics while keeping
// flushing and hijacking available to the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.HTTPRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(rec, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		log.Printf("❌ Failed to marshal response: %v", err)
		http.Error(w, msgServiceError, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, messages.NewErrorBody(code, message))
}

// writeUpstreamError maps a backend failure onto the client-facing status:
// 429 and 402 pass through, anything else becomes a 500
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	code := gateway.StatusCode(err)
	s.metrics.UpstreamErrors.WithLabelValues(s.backend.Name(), strconv.Itoa(code)).Inc()

	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, messages.ErrCodeRateLimited, msgRateLimited)
	case errors.Is(err, gateway.ErrCreditsExhausted):
		s.writeError(w, http.StatusPaymentRequired, messages.ErrCodeCreditsExhausted, msgCreditsExhausted)
	default:
		log.Printf("❌ AI backend error: %v", err)
		s.writeError(w, http.StatusInternalServerError, messages.ErrCodeUpstreamError, msgServiceError)
	}
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter.Allow(r.Context(), clientKey(r)) {
		return true
	}
	s.metrics.RateLimitHits.Inc()
	s.writeError(w, http.StatusTooManyRequests, messages.ErrCodeRateLimited, msgRateLimited)
	return false
}

// handleChat relays a streamed completion as server-sent events
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, messages.ErrCodeInvalidMessage, "Method not allowed")
		return
	}
	if !s.allow(w, r) {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "Failed to read request body")
		return
	}
	var req messages.ChatRequest
	if err := sonic.Unmarshal(data, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "Invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "messages are required")
		return
	}

	msgs := make([]messages.ChatMessage, 0, len(req.Messages)+1)
	if prompt := strings.TrimSpace(s.config.SystemPrompt); prompt != "" {
		msgs = append(msgs, messages.ChatMessage{Role: "system", Content: prompt})
	}
	msgs = append(msgs, req.Messages...)

	backend := s.backend.Name()
	body, err := s.backend.Open(r.Context(), msgs)
	if err != nil {
		s.metrics.ChatStreams.WithLabelValues(backend, "rejected").Inc()
		s.writeUpstreamError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	n, err := copyFlush(w, body)
	s.metrics.ChatStreamBytes.Add(float64(n))

	switch {
	case err == nil:
		s.metrics.ChatStreams.WithLabelValues(backend, "ok").Inc()
	case r.Context().Err() != nil:
		s.metrics.ChatStreams.WithLabelValues(backend, "client_gone").Inc()
	default:
		s.metrics.ChatStreams.WithLabelValues(backend, "interrupted").Inc()
		log.Printf("❌ Completion stream interrupted after %d bytes: %v", n, err)
		// abort the response so the client sees a truncated stream, not a clean end
		panic(http.ErrAbortHandler)
	}
}

// copyFlush copies src to w, flushing after every read so deltas reach the
// client as soon as the upstream emits them
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return total, ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// handleRealtime upgrades the client and bridges it to the upstream
// realtime endpoint
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if s.sessionManager == nil {
		s.writeError(w, http.StatusServiceUnavailable, messages.ErrCodeSessionFailed, "Realtime voice is not configured")
		return
	}
	if !s.allow(w, r) {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientSession, err := s.sessionManager.CreateSession(r.Context(), conn)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		code := messages.ErrCodeSessionFailed
		if errors.Is(err, session.ErrMaxSessions) {
			code = messages.ErrCodeRateLimited
		}
		errMsg, _ := sonic.Marshal(messages.NewErrorEvent(code, err.Error()))
		_ = conn.WriteMessage(websocket.TextMessage, errMsg)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ""))
		conn.Close()
		return
	}

	log.Printf("✅ New session created: %s", clientSession.ID)
	clientSession.Start()

	// Wait for session to close
	<-clientSession.CloseChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.sessionManager.RemoveSession(ctx, clientSession.ID)
	log.Printf("🔌 Session closed: %s", clientSession.ID)
}

type realtimeSessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// handleRealtimeSession mints an ephemeral client secret so clients can
// dial the upstream directly
func (s *Server) handleRealtimeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, messages.ErrCodeInvalidMessage, "Method not allowed")
		return
	}
	if s.tokens == nil {
		s.writeError(w, http.StatusServiceUnavailable, messages.ErrCodeSessionFailed, "Realtime voice is not configured")
		return
	}
	if !s.allow(w, r) {
		return
	}

	req := realtimeSessionRequest{Model: s.config.RealtimeModel, Voice: "alloy"}
	if data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody)); err == nil && len(data) > 0 {
		var in realtimeSessionRequest
		if err := sonic.Unmarshal(data, &in); err == nil && in.Voice != "" {
			req.Voice = in.Voice
		}
	}

	var out map[string]any
	if err := s.tokens.PostJSON(r.Context(), realtimeSessionsFunction, req, &out); err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	if s.sessionManager != nil {
		sessions = s.sessionManager.GetActiveSessionCount()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  sessions,
		"backend":   s.backend.Name(),
		"ratelimit": s.limiter.Enabled(),
	})
}
