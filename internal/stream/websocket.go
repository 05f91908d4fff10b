package stream

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/maumtalk/counseling-server/internal/identity"
	"github.com/maumtalk/counseling-server/internal/store"
)

// WebSocketHandler upgrades session stream requests and parks them on the hub.
type WebSocketHandler struct {
	repo  store.Repository
	hub   *Hub
	isDev bool
}

// NewWebSocketHandler creates a stream handler.
func NewWebSocketHandler(repo store.Repository, hub *Hub, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{repo: repo, hub: hub, isDev: isDev}
}

// ServeHTTP handles GET /ws/sessions/{sessionID}. The connection receives
// one JSON exchange event per completed message exchange.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.repo.GetSession(r.Context(), sessionID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to resolve session for stream", "error", err, "session_id", sessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	opts := &websocket.AcceptOptions{}
	if h.isDev {
		opts.OriginPatterns = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("failed to accept stream websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("failed to close stream websocket", "error", closeErr)
		}
	}()

	h.hub.Register(userID, sessionID, conn)
	defer h.hub.Unregister(userID, sessionID, conn)

	// Subscribers only listen; the read loop exists to notice disconnects.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
