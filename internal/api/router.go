package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-mesh/internal/auth"
)

// healthCheckTimeout bounds each component check of the health route.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// The WebSocket handshake authenticates itself.
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/mesh", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermMeshRead)).Get("/devices", s.handleListDevices)
				r.With(s.requirePermission(auth.PermMeshRead)).Get("/session", s.handleSession)
				r.With(s.requirePermission(auth.PermMeshRead)).Get("/journal", s.handleJournal)
				r.With(s.requirePermission(auth.PermMeshCommission)).Post("/commission", s.handleCommission)
				r.With(s.requirePermission(auth.PermMeshReset)).Post("/reset", s.handleReset)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleAudit)
		})
	})

	return r
}

// handleHealth reports liveness, the version and each component check.
// The status is "degraded" when any check fails; the response is still 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.checks))

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
		"ws_clients": s.hub.ClientCount(),
	})
}

// wsPath returns the configured WebSocket route, defaulting to /ws.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
