package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the allocation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/allocate_portfolio", h.HandleAllocatePortfolio)
	r.Get("/api/categories", h.HandleGetCategories)
}
