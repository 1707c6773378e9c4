package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /api/v1/estimate", chain(http.HandlerFunc(h.GetEstimate)))
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))

	// Health без логирования: его дёргают слишком часто
	mux.Handle("GET /healthz", http.HandlerFunc(h.Health))
}
