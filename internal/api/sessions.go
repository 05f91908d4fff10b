package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maumtalk/counseling-server/internal/chat"
	"github.com/maumtalk/counseling-server/internal/domain"
	"github.com/maumtalk/counseling-server/internal/identity"
	"github.com/maumtalk/counseling-server/internal/store"
)

// SessionHandler handles counseling session endpoints.
type SessionHandler struct {
	*Handler
	titleMaxLength int
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler, titleMaxLength int) *SessionHandler {
	return &SessionHandler{Handler: base, titleMaxLength: titleMaxLength}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/", h.List)
		r.Delete("/{sessionID}", h.Close)
		r.Patch("/{sessionID}/title", h.UpdateTitle)
		r.Post("/{sessionID}/bookmark", h.ToggleBookmark)
		r.Get("/{sessionID}/messages", h.ListMessages)
		r.Post("/{sessionID}/messages", h.SendMessage)
	})
}

type sessionResponse struct {
	ID            string     `json:"id"`
	CounselorID   string     `json:"counselor_id"`
	Title         string     `json:"title"`
	IsBookmarked  bool       `json:"is_bookmarked"`
	IsClosed      bool       `json:"is_closed"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:            s.ID,
		CounselorID:   s.CounselorID,
		Title:         s.Title,
		IsBookmarked:  s.IsBookmarked,
		IsClosed:      s.IsClosed(),
		CreatedAt:     s.CreatedAt,
		ClosedAt:      s.ClosedAt,
		LastMessageAt: s.LastMessageAt,
	}
}

type messageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Phase     string    `json:"phase"`
	PhaseName string    `json:"phase_name"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Sender:    string(m.SenderType),
		Content:   m.Content,
		Phase:     m.Phase.String(),
		PhaseName: m.Phase.KoreanName(),
		CreatedAt: m.CreatedAt,
	}
}

// Start creates a new counseling session with the chosen counselor.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req struct {
		CounselorID string `json:"counselor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CounselorID) == "" {
		Error(w, http.StatusBadRequest, "counselor_id is required")
		return
	}

	if _, err := h.repo.GetCounselor(r.Context(), req.CounselorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "counselor not found")
			return
		}
		slog.Error("Failed to resolve counselor", "error", err, "counselor_id", req.CounselorID)
		Error(w, http.StatusInternalServerError, "failed to resolve counselor")
		return
	}

	session := &domain.Session{
		UserID:      userID,
		CounselorID: req.CounselorID,
	}
	if err := h.repo.CreateSession(r.Context(), session); err != nil {
		slog.Error("Failed to create session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("Session started", "session_id", session.ID, "user_id", userID, "counselor_id", req.CounselorID)
	JSON(w, http.StatusCreated, toSessionResponse(session))
}

// List returns the user's sessions, most recently active first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	bookmarkedOnly := r.URL.Query().Get("bookmarked") == "true"

	sessions, err := h.repo.ListSessions(r.Context(), userID, bookmarkedOnly)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	JSON(w, http.StatusOK, out)
}

// Close marks a session as closed. Closing an already closed session is a
// no-op that still returns the session.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, ok := h.resolveSession(w, r, sessionID, userID)
	if !ok {
		return
	}

	if !session.IsClosed() {
		now := time.Now()
		session.ClosedAt = &now
		if err := h.repo.SaveSession(r.Context(), session); err != nil {
			slog.Error("Failed to close session", "error", err, "session_id", sessionID)
			Error(w, http.StatusInternalServerError, "failed to close session")
			return
		}
		slog.Info("Session closed", "session_id", sessionID, "user_id", userID)
	}

	JSON(w, http.StatusOK, toSessionResponse(session))
}

// UpdateTitle renames a session.
func (h *SessionHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if runes := []rune(title); len(runes) > h.titleMaxLength {
		title = string(runes[:h.titleMaxLength])
	}

	session, ok := h.resolveSession(w, r, sessionID, userID)
	if !ok {
		return
	}

	session.Title = title
	if err := h.repo.SaveSession(r.Context(), session); err != nil {
		slog.Error("Failed to update session title", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to update title")
		return
	}

	JSON(w, http.StatusOK, toSessionResponse(session))
}

// ToggleBookmark flips the session's bookmark flag.
func (h *SessionHandler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, ok := h.resolveSession(w, r, sessionID, userID)
	if !ok {
		return
	}

	session.IsBookmarked = !session.IsBookmarked
	if err := h.repo.SaveSession(r.Context(), session); err != nil {
		slog.Error("Failed to toggle bookmark", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to toggle bookmark")
		return
	}

	JSON(w, http.StatusOK, toSessionResponse(session))
}

// ListMessages returns the session's full message history, oldest first.
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if _, ok := h.resolveSession(w, r, sessionID, userID); !ok {
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to list messages", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	JSON(w, http.StatusOK, out)
}

// SendMessage runs one message exchange and returns both stored turns.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chat.SendMessage(r.Context(), sessionID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			Error(w, http.StatusBadRequest, "message content is required")
		case errors.Is(err, store.ErrNotFound):
			Error(w, http.StatusNotFound, "session not found")
		case errors.Is(err, chat.ErrSessionClosed):
			Error(w, http.StatusConflict, "session already closed")
		default:
			slog.Error("Message exchange failed", "error", err, "session_id", sessionID)
			Error(w, http.StatusInternalServerError, "failed to process message")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_message":  toMessageResponse(result.UserMessage),
		"ai_message":    toMessageResponse(result.AIMessage),
		"current_phase": result.CurrentPhase.String(),
		"phase_name":    result.CurrentPhase.KoreanName(),
		"session_title": result.SessionTitle,
	})
}

// resolveSession loads an owned session or writes the error response.
func (h *SessionHandler) resolveSession(w http.ResponseWriter, r *http.Request, sessionID, userID string) (*domain.Session, bool) {
	session, err := h.repo.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		slog.Error("Failed to resolve session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to resolve session")
		return nil, false
	}
	return session, true
}
