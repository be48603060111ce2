package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/room4-2/chatai/config"
	"github.com/room4-2/chatai/metrics"
	"github.com/room4-2/chatai/realtime"
)

// ErrMaxSessions is returned when the relay is at capacity
var ErrMaxSessions = errors.New("maximum sessions reached")

const (
	sessionKeyPrefix  = "session:"
	activeSessionsKey = "active_sessions"
	cleanupInterval   = 1 * time.Minute
)

// NewRedisClient connects to Redis and returns nil when it is unreachable,
// in which case the relay runs without a shared registry
func NewRedisClient(addr, password string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Redis unavailable at %s, running without registry: %v", addr, err)
		client.Close()
		return nil
	}
	log.Printf("✅ Connected to Redis at %s", addr)
	return client
}

// Manager owns the live bridge sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
	dial     realtime.Dialer
	metrics  *metrics.Metrics
}

// NewManager creates a session manager. dial opens the upstream channel of
// every new session; rdb may be nil.
func NewManager(cfg *config.Config, dial realtime.Dialer, rdb *redis.Client, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		redis:    rdb,
		config:   cfg,
		dial:     dial,
		metrics:  m,
	}
}

// CreateSession dials the upstream and registers a bridge session for
// clientConn. The session is not started.
func (sm *Manager) CreateSession(ctx context.Context, clientConn *websocket.Conn) (*Session, error) {
	if sm.dial == nil {
		return nil, errors.New("realtime bridge is not configured")
	}
	if sm.GetActiveSessionCount() >= sm.config.MaxSessions {
		return nil, ErrMaxSessions
	}

	upstream, err := sm.dial(ctx)
	if err != nil {
		sm.metrics.SessionsTotal.WithLabelValues("dial_failed").Inc()
		return nil, fmt.Errorf("failed to connect upstream: %w", err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// re-check, other sessions may have registered while dialing
	if len(sm.sessions) >= sm.config.MaxSessions {
		upstream.Close()
		return nil, ErrMaxSessions
	}

	sessionID := uuid.New().String()
	session := NewSession(sessionID, clientConn, upstream, sm.config.KeepAlivePeriod)
	session.OnFrame = func(direction string) {
		sm.metrics.BridgeFrames.WithLabelValues(direction).Inc()
	}

	sm.storeSession(ctx, sessionID, session)
	sm.metrics.SessionsTotal.WithLabelValues("created").Inc()
	sm.metrics.ActiveSessions.Inc()
	return session, nil
}

func (sm *Manager) storeSession(ctx context.Context, sessionID string, session *Session) {
	sm.sessions[sessionID] = session

	if sm.redis != nil {
		sm.redis.HSet(ctx, sessionKeyPrefix+sessionID, map[string]interface{}{
			"created_at":    session.CreatedAt.Format(time.RFC3339),
			"last_activity": session.LastActivity().Format(time.RFC3339),
			"status":        "active",
		})
		sm.redis.SAdd(ctx, activeSessionsKey, sessionID)
		sm.redis.Expire(ctx, sessionKeyPrefix+sessionID, sm.config.SessionTimeout)
	}
}

// GetSession returns a live session by id
func (sm *Manager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

// RemoveSession closes and unregisters a session
func (sm *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	session, exists := sm.sessions[sessionID]
	if !exists {
		sm.mu.Unlock()
		return nil
	}
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	sm.forget(ctx, sessionID, session)
	return session.Close()
}

// forget drops the registry entry and records the session lifetime
func (sm *Manager) forget(ctx context.Context, sessionID string, session *Session) {
	sm.metrics.ActiveSessions.Dec()
	sm.metrics.SessionDuration.Observe(time.Since(session.CreatedAt).Seconds())

	if sm.redis != nil {
		sm.redis.Del(ctx, sessionKeyPrefix+sessionID)
		sm.redis.SRem(ctx, activeSessionsKey, sessionID)
	}
}

// GetActiveSessionCount returns the number of live sessions
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions closes sessions idle for longer than the session
// timeout and refreshes the registry entry of the others
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) int {
	now := time.Now()
	var stale []*Session

	sm.mu.Lock()
	for id, session := range sm.sessions {
		last := session.LastActivity()
		if now.Sub(last) > sm.config.SessionTimeout {
			stale = append(stale, session)
			delete(sm.sessions, id)
			continue
		}
		if sm.redis != nil {
			sm.redis.HSet(ctx, sessionKeyPrefix+id, "last_activity", last.Format(time.RFC3339))
			sm.redis.Expire(ctx, sessionKeyPrefix+id, sm.config.SessionTimeout)
		}
	}
	sm.mu.Unlock()

	// Close outside the lock, it waits for the write pump
	for _, session := range stale {
		log.Printf("🧹 [%s] Closing inactive session", session.short())
		sm.metrics.SessionsTotal.WithLabelValues("expired").Inc()
		sm.forget(ctx, session.ID, session)
		session.Close()
	}
	return len(stale)
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all sessions
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id, session := range sessions {
		sm.forget(ctx, id, session)
		session.Close()
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
