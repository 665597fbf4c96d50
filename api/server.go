/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Recoverer:  Panic recovery (500 instead of crash)
  2. RequestID:  Unique ID per request for tracing
  3. CORS:       Cross-origin requests for internal tooling

ROUTE GROUPS:
  /api/rewards/*   Reward trigger notifications
  /api/users/*     Reward event history
  /api/admin/*     Manual settlement, dev-mode transfer inspection

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Reward trigger routes
		r.Route("/rewards", func(r chi.Router) {
			r.Post("/reactions", h.TriggerReaction)
			r.Post("/referrals", h.TriggerReferral)
			r.Post("/reports", h.TriggerReport)
			r.Post("/content-votes", h.TriggerContentVote)
			r.Post("/answer-votes", h.TriggerAnswerVote)
		})

		// History routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/events", h.ListUserEvents)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/settle/{type}", h.TriggerSettle)
			r.Get("/transfers", h.ListTransfers)
		})
	})

	return r
}
