package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mpd/internal/history"
)

// handleItemHistory returns recent updates of one item, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, capped by the store)
func (s *Server) handleItemHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "update history is disabled")
		return
	}
	item := chi.URLParam(r, "item")
	s.serveHistory(w, r, "item", item, s.history.ListByItem)
}

// handlePlayerHistory returns recent updates produced by one player,
// newest first. Takes the same limit parameter as handleItemHistory.
func (s *Server) handlePlayerHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "update history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.bridge.Player(id); !ok {
		writeNotFound(w, "player not found")
		return
	}
	s.serveHistory(w, r, "player_id", id, s.history.ListByPlayer)
}

type historyLister func(ctx context.Context, key string, limit int) ([]history.Entry, error)

func (s *Server) serveHistory(w http.ResponseWriter, r *http.Request, field, key string, list historyLister) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := list(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("failed to read history", field, key, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		field:     key,
		"entries": entries,
		"count":   len(entries),
	})
}
