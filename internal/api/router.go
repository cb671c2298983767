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

	// API v1 routes. This is an unauthenticated monitoring surface:
	// it exposes counters and status, never message content.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		if s.journal != nil {
			r.Get("/journal/recent", s.handleJournalRecent)
			r.Get("/journal/stats", s.handleJournalStats)
		}
	})

	return r
}
