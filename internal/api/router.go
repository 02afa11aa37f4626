package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check of GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/players", func(r chi.Router) {
			r.Get("/", s.handleListPlayers)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPlayer)
				r.Post("/reconnect", s.handleReconnectPlayer)
				r.Get("/history", s.handlePlayerHistory)
			})
		})

		r.Get("/items/{item}/history", s.handleItemHistory)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Players       PlayerCounts      `json:"players"`
	Components    map[string]string `json:"components,omitempty"`
	WSClients     int               `json:"ws_clients"`
}

// PlayerCounts summarises player connectivity.
type PlayerCounts struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
}

// handleHealth reports bridge health. A failing component check answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		WSClients:     s.hub.ClientCount(),
	}

	for _, p := range s.bridge.Players() {
		resp.Players.Total++
		if p.Connected {
			resp.Players.Connected++
		}
	}

	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name](ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	if resp.Status == "ok" && resp.Players.Connected < resp.Players.Total {
		resp.Status = "degraded"
	}

	writeJSON(w, status, resp)
}
