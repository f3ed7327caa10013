package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the optimizer routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Get("/strategies", h.HandleGetStrategies)
		r.Post("/run", h.HandleRun)
	})
}
