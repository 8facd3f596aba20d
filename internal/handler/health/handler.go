package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatform/backend/pkg/utils"
)

// SessionCounter exposes the live-session count for status reporting.
type SessionCounter interface {
	Count() int
}

// AIProber verifies the conversational backend with a throwaway round trip.
type AIProber interface {
	Probe(ctx context.Context) error
}

// Handler serves the health and status endpoints.
type Handler struct {
	sessions SessionCounter
	prober   AIProber
}

// New creates the health handler.
func New(sessions SessionCounter, prober AIProber) *Handler {
	return &Handler{sessions: sessions, prober: prober}
}

// RegisterRoutes mounts the /api status endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/socket/status", h.handleSocketStatus)
	r.Get("/health/ai", h.handleAIHealth)
}

// HandleHealth serves the root liveness endpoint.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   "chatform backend is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"sessions":  h.sessions.Count(),
	})
}

func (h *Handler) handleSocketStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":        "WebSocket endpoint available at /ws",
		"status":         "ready",
		"activeSessions": h.sessions.Count(),
	})
}

func (h *Handler) handleAIHealth(w http.ResponseWriter, r *http.Request) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if err := h.prober.Probe(r.Context()); err != nil {
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]any{
			"status":    "ERROR",
			"service":   "ark",
			"timestamp": timestamp,
			"error":     err.Error(),
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"service":   "ark",
		"timestamp": timestamp,
	})
}
