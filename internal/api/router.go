package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/lockgate/internal/coordinator"
)

// componentCheckTimeout bounds each component health check on /health.
const componentCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates with a single-use ticket in the query.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)

			r.Get("/gateway", s.handleGateway)
			r.Get("/cycle", s.handleLastCycle)
			r.Post("/refresh", s.handleRefresh)

			r.Route("/locks", func(r chi.Router) {
				r.Get("/", s.handleListLocks)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLock)
					r.Post("/{verb}", s.handleLockVerb)
				})
			})
		})
	})

	return r
}

// handleHealth reports service liveness, gateway reachability and the state
// of each optional component. It answers 200 while the service runs; a down
// component or unreachable gateway is reported as "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.components))
	for name, c := range s.components {
		ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	gw := s.ctrl.Health()
	if gw.State == coordinator.Unreachable {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"gateway":    gw,
		"components": components,
	})
}
