package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the component checks of one health request.
const healthCheckTimeout = 3 * time.Second

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Devices authenticate with the shared device key, not a user token.
		r.With(s.deviceKeyMiddleware).Post("/measurements", s.handleIngest)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/flowers/{id}", func(r chi.Router) {
				r.Get("/measurements", s.handleHistory)
				r.Get("/measurements/latest", s.handleLatest)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
				r.Post("/transplant", s.handleTransplantFlower)
			})
			r.Post("/smartpots/{id}/transplant", s.handleTransplantPot)

			r.Post("/maintenance/reconcile", s.handleReconcile)
			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	// Token travels in the query string; browsers cannot set headers on
	// the handshake.
	r.Get("/ws/measurements/{flowerID}", s.handleLiveMeasurements)

	return r
}

// handleHealth reports version, live connection count and the state of
// each registered component. Any failing component makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":           status,
		"version":          s.version,
		"live_connections": s.live.Count(),
		"components":       components,
	})
}
