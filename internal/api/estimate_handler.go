package api

import (
	"net/http"
)

// GetEstimate обрабатывает GET /api/v1/estimate.
func (h *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		Unavailable(w, "aggregator is not running")
		return
	}

	Success(w, EstimateFromDomain(h.source.Snapshot(), h.reference))
}

// ListWorkers обрабатывает GET /api/v1/workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		Unavailable(w, "aggregator is not running")
		return
	}

	workers := WorkersFromDomain(h.source.Snapshot())
	List(w, workers, len(workers))
}

// Health обрабатывает GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
