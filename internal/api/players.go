package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mpd/internal/bridges/mpd"
)

// handleListPlayers returns every configured player.
func (s *Server) handleListPlayers(w http.ResponseWriter, _ *http.Request) {
	players := s.bridge.Players()
	if players == nil {
		players = []mpd.PlayerStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"players": players,
		"count":   len(players),
	})
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.bridge.Player(id)
	if !ok {
		writeNotFound(w, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReconnectPlayer drops and re-establishes one player's session.
func (s *Server) handleReconnectPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.bridge.Reconnect(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, mpd.ErrUnknownPlayer):
		writeNotFound(w, "player not found")
		return
	case errors.Is(err, mpd.ErrUnknownHost), errors.Is(err, mpd.ErrConnectionFailed):
		s.logger.Warn("player reconnect failed", "player_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
		return
	default:
		s.logger.Error("player reconnect failed", "player_id", id, "error", err)
		writeInternalError(w, "reconnect failed")
		return
	}

	s.logger.Info("player reconnected via API", "player_id", id, "request_id", requestID(r.Context()))
	status, _ := s.bridge.Player(id)
	writeJSON(w, http.StatusOK, status)
}
