package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/stats", s.stats)

		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.getConfig)
			r.Post("/", s.saveConfig)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/active", s.listActive)
			r.Post("/start", s.startSession)
			r.Post("/restart-all", s.restartAll)
		})

		r.Route("/session/{name}", func(r chi.Router) {
			r.Get("/status", s.sessionStatus)
			r.Post("/restart", s.restartSession)
			r.Delete("/", s.deleteSession)
		})

		r.Get("/backup/status", s.backupStatus)
		r.Get("/events", s.events)
		r.Get("/logs", s.logs)
	})
}
