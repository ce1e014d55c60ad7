package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all MC-VQE routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/mcvqe", func(r chi.Router) {
		r.Post("/runs", h.HandleSubmitRun)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
		r.Delete("/runs/{id}", h.HandleCancelRun)
		r.Get("/runs/{id}/stream", h.HandleStreamRun)
		r.Post("/evaluate", h.HandleEvaluate)
	})
}
