package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const defaultWSPath = "/api/v1/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)
		r.Get("/faults", s.handleGetFaults)

		r.Get("/connection", s.handleGetConnection)
		r.Get("/journal", s.handleListJournal)

		// Control routes change the appliance and need a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/connection/reconnect", s.handleReconnect)
			r.Post("/commands", s.handleCommand)
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// handleHealth returns the server health status. The server is healthy
// while it can answer; the appliance link is reported alongside.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	transport := "ok"
	if err := s.device.HealthCheck(r.Context()); err != nil {
		transport = err.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"connection": s.device.Status(),
		"transport":  transport,
	})
}
