package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/room4-2/chatai/messages"
	"github.com/room4-2/chatai/realtime"
)

const (
	writeBufferSize  = 256
	writeTimeout     = 10 * time.Second
	maxClientMessage = 512 * 1024 // 512KB max message
)

// Frame directions reported to OnFrame
const (
	DirectionUpstream = "upstream"
	DirectionClient   = "client"
)

type frame struct {
	messageType int
	data        []byte
}

// Session bridges one client WebSocket to one upstream realtime channel.
// Client frames are forwarded upstream as-is; upstream frames are queued to
// a single write pump so the client connection only ever has one writer.
type Session struct {
	ID         string
	ClientConn *websocket.Conn
	Upstream   realtime.DuplexMessageChannel
	CreatedAt  time.Time

	// OnFrame is called for every forwarded frame with its direction
	OnFrame func(direction string)

	keepAlive    time.Duration
	lastActivity time.Time
	writeChan    chan frame
	pumpDone     chan struct{}

	mu        sync.RWMutex
	started   bool
	closed    bool
	CloseChan chan struct{}
}

// NewSession creates a bridge session. keepAlive is the client ping period
// (0 disables pings).
func NewSession(id string, clientConn *websocket.Conn, upstream realtime.DuplexMessageChannel, keepAlive time.Duration) *Session {
	clientConn.SetReadLimit(maxClientMessage)

	now := time.Now()
	return &Session{
		ID:           id,
		ClientConn:   clientConn,
		Upstream:     upstream,
		CreatedAt:    now,
		keepAlive:    keepAlive,
		lastActivity: now,
		writeChan:    make(chan frame, writeBufferSize),
		pumpDone:     make(chan struct{}),
		CloseChan:    make(chan struct{}),
	}
}

// Start begins pumping frames in both directions
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.writePump()
	s.queueJSON(messages.NewStatusEvent(s.ID, "connected"))
	go s.pumpUpstream()
	go s.pumpClient()
}

// LastActivity returns when a frame last crossed the bridge
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// IsClosed reports whether Close has been called
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) short() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

func (s *Session) countFrame(direction string) {
	if s.OnFrame != nil {
		s.OnFrame(direction)
	}
}

// pumpClient forwards client frames to the upstream channel
func (s *Session) pumpClient() {
	defer s.Close()

	for {
		messageType, data, err := s.ClientConn.ReadMessage()
		if err != nil {
			if !s.IsClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] Client read error: %v", s.short(), err)
			}
			return
		}
		s.touch()

		if messageType != websocket.TextMessage {
			s.queueJSON(messages.NewErrorEvent(messages.ErrCodeInvalidMessage, "Binary frames are not supported"))
			continue
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := sonic.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
			s.queueJSON(messages.NewErrorEvent(messages.ErrCodeInvalidMessage, "Invalid message format"))
			continue
		}

		if err := s.Upstream.Send(data); err != nil {
			log.Printf("❌ [%s] Failed to forward %s upstream: %v", s.short(), envelope.Type, err)
			s.queueJSON(messages.NewErrorEvent(messages.ErrCodeUpstreamError, "Upstream connection lost"))
			return
		}
		s.countFrame(DirectionUpstream)
	}
}

// pumpUpstream forwards upstream events to the client
func (s *Session) pumpUpstream() {
	defer s.Close()

	for {
		data, err := s.Upstream.Receive()
		if err != nil {
			switch {
			case s.IsClosed():
			case errors.Is(err, realtime.ErrChannelClosed):
				log.Printf("🔌 [%s] Upstream closed the session", s.short())
				s.queueJSON(messages.NewStatusEvent(s.ID, "closed"))
			default:
				log.Printf("❌ [%s] Upstream error: %v", s.short(), err)
				s.queueJSON(messages.NewErrorEvent(messages.ErrCodeUpstreamError, err.Error()))
			}
			return
		}
		s.touch()
		s.countFrame(DirectionClient)
		s.queue(frame{messageType: websocket.TextMessage, data: data})
	}
}

// queue hands a frame to the write pump, waiting for room unless the
// session closes first
func (s *Session) queue(f frame) {
	select {
	case <-s.CloseChan:
	case s.writeChan <- f:
	}
}

func (s *Session) queueJSON(v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		log.Printf("❌ [%s] Failed to marshal event: %v", s.short(), err)
		return
	}
	s.queue(frame{messageType: websocket.TextMessage, data: data})
}

// writePump handles all outgoing client messages in a single goroutine
func (s *Session) writePump() {
	defer close(s.pumpDone)
	defer func() {
		// Send close message before exiting
		_ = s.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = s.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.ClientConn.Close()
	}()

	var ping <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-s.CloseChan:
			s.drain()
			return
		case f := <-s.writeChan:
			if err := s.write(f); err != nil {
				log.Printf("❌ [%s] Client write error: %v", s.short(), err)
				return
			}
		case <-ping:
			_ = s.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.ClientConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain flushes frames queued before Close, such as a final error event
func (s *Session) drain() {
	for {
		select {
		case f := <-s.writeChan:
			if err := s.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(f frame) error {
	_ = s.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.ClientConn.WriteMessage(f.messageType, f.data)
}

// Close terminates the session and cleans up resources. Safe to call more
// than once and from any goroutine.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.CloseChan)
	err := s.Upstream.Close()

	if started {
		// writePump closes the client connection once queued frames are out
		<-s.pumpDone
	} else {
		s.ClientConn.Close()
	}
	return err
}
