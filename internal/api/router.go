package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Device-facing endpoints
		r.Post("/esp32/register", s.handleRegister)
		r.Post("/heartbeat", s.handleHeartbeat)

		// Registry management
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Post("/discover", s.handleDiscover)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)

				// Gateway commands
				r.Post("/restart", s.handleRestart)
				r.Post("/firmware", s.handleFirmwareUpload)
				r.Post("/firmware/erase-old", s.handleFirmwareEraseOld)
				r.Get("/firmware/info", s.handleFirmwareInfo)
			})
		})

		// Dashboard bulk tally channel
		r.Post("/tally/bulk", s.handleTallyBulk)

		// System status
		r.Get("/status", s.handleStatus)
	})

	// Browser WebSocket
	r.Get("/ws", s.handleWebSocket)

	return r
}
