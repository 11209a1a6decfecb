package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wattbridge/ecoflow-bridge/internal/coordinator"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/commands", s.handleListCommands)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{sn}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/state", s.handleGetDeviceState)
					r.Post("/refresh", s.handleRefreshDevice)
					r.Get("/history", s.handleGetHistory)
					r.Post("/commands", s.handleExecuteCommand)
					r.Put("/interval", s.handleSetInterval)
					r.Get("/diagnostics", s.handleGetDiagnostics)
				})
			})

			// WebSocket (auth via token query parameter, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status and per-device refresh state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	devices := make(map[string]any, len(s.coordinators))
	for sn, coord := range s.coordinators {
		entry := map[string]any{"healthy": coord.LastError() == nil}
		if err := coord.LastError(); err != nil {
			entry["last_error"] = err.Error()
		}
		devices[sn] = entry
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": devices,
	})
}

// handleListCommands returns the registered command names.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": coordinator.CommandNames(),
	})
}
