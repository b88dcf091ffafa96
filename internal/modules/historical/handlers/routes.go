package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/historical/prices/{symbol}", h.HandleGetDailyPrices)
	r.Get("/api/historical/returns/{symbol}", h.HandleGetDailyReturns)
}
