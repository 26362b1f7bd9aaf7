package api

import (
	"log/slog"
	"net/http"

	"github.com/akoval/verax/internal/store"
	"github.com/go-chi/chi/v5"
)

// HistoryHandler serves the dashboard and history endpoints over the ledger.
type HistoryHandler struct {
	ledger store.Ledger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(ledger store.Ledger) *HistoryHandler {
	return &HistoryHandler{ledger: ledger}
}

// RegisterRoutes mounts the history API.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/history", func(r chi.Router) {
		r.Get("/stats", h.getStats)
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{id}", h.getSession)
	})
}

func (h *HistoryHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		slog.Error("failed to load stats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

func (h *HistoryHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.ledger.ListSessions(r.Context())
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, sessions)
}

func (h *HistoryHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.ledger.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("failed to load session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	factChecks, err := h.ledger.ListFactChecks(r.Context(), id)
	if err != nil {
		slog.Error("failed to load fact checks", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session":    session,
		"factChecks": factChecks,
	})
}
