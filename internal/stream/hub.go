// Package stream provides per-session WebSocket delivery of exchange events.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/maumtalk/counseling-server/internal/chat"
)

const writeTimeout = 5 * time.Second

// Hub tracks active WebSocket connections keyed by user and session.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a user/session, replacing any previous one.
func (h *Hub) Register(userID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := h.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "stream replaced")
	}

	h.active[userID][sessionID] = conn
	slog.Info("session stream registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection for a user/session.
func (h *Hub) Unregister(userID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			slog.Info("session stream unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// PublishExchange pushes an exchange event to the session's subscriber, if
// any. Delivery is best effort; a slow or dead connection is dropped.
func (h *Hub) PublishExchange(userID string, event chat.ExchangeEvent) {
	h.mu.RLock()
	var conn *websocket.Conn
	if sessions, ok := h.active[userID]; ok {
		conn = sessions[event.SessionID]
	}
	h.mu.RUnlock()

	if conn == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal exchange event", "session_id", event.SessionID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		slog.Debug("dropping dead stream connection",
			"user_id", userID, "session_id", event.SessionID, "error", err)
		h.Unregister(userID, event.SessionID, conn)
		_ = conn.Close(websocket.StatusGoingAway, "write failed")
	}
}
