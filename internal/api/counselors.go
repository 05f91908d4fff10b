package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maumtalk/counseling-server/internal/domain"
	"github.com/maumtalk/counseling-server/internal/store"
)

// CounselorHandler handles counselor persona endpoints.
type CounselorHandler struct {
	*Handler
}

// NewCounselorHandler creates a new counselor handler.
func NewCounselorHandler(base *Handler) *CounselorHandler {
	return &CounselorHandler{Handler: base}
}

// RegisterRoutes registers counselor routes.
func (h *CounselorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/counselors", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{counselorID}", h.Get)
	})
}

type counselorResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func toCounselorResponse(c *domain.Counselor) counselorResponse {
	return counselorResponse{
		ID:          c.ID,
		Name:        c.Name,
		Title:       c.Title,
		Description: c.Description,
	}
}

// List returns all active counselor personas.
func (h *CounselorHandler) List(w http.ResponseWriter, r *http.Request) {
	counselors, err := h.repo.ListCounselors(r.Context())
	if err != nil {
		slog.Error("Failed to list counselors", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list counselors")
		return
	}

	out := make([]counselorResponse, 0, len(counselors))
	for _, c := range counselors {
		out = append(out, toCounselorResponse(c))
	}
	JSON(w, http.StatusOK, out)
}

// Get returns a single counselor persona.
func (h *CounselorHandler) Get(w http.ResponseWriter, r *http.Request) {
	counselorID := chi.URLParam(r, "counselorID")

	counselor, err := h.repo.GetCounselor(r.Context(), counselorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "counselor not found")
			return
		}
		slog.Error("Failed to get counselor", "error", err, "counselor_id", counselorID)
		Error(w, http.StatusInternalServerError, "failed to get counselor")
		return
	}

	JSON(w, http.StatusOK, toCounselorResponse(counselor))
}
