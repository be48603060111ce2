package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Receive after a normal close, either
// remote or local
var ErrChannelClosed = errors.New("channel closed")

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4 * 1024 * 1024
)

// DuplexMessageChannel is a bidirectional, message-oriented transport.
// Send may be called from several goroutines; Receive from one.
type DuplexMessageChannel interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens a DuplexMessageChannel
type Dialer func(ctx context.Context) (DuplexMessageChannel, error)

// WebSocketChannel adapts a gorilla connection to DuplexMessageChannel
type WebSocketChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// NewWebSocketChannel wraps an established connection
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	conn.SetReadLimit(maxMessageSize)
	return &WebSocketChannel{conn: conn}
}

// DialWebSocket returns a Dialer for url. header carries authentication.
func DialWebSocket(url string, header http.Header) Dialer {
	return func(ctx context.Context) (DuplexMessageChannel, error) {
		dialer := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("websocket handshake failed (HTTP %d): %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("failed to dial websocket: %w", err)
		}
		return NewWebSocketChannel(conn), nil
	}
}

// Send writes one text message
func (c *WebSocketChannel) Send(data []byte) error {
	if c.isClosed() {
		return ErrChannelClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive blocks for the next message
func (c *WebSocketChannel) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrChannelClosed
		}
		return nil, err
	}
	return data, nil
}

// Close sends a close frame and closes the connection. Safe to call more
// than once.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *WebSocketChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
