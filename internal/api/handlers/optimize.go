package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmacy-delivery-service/internal/api/dto"
	"pharmacy-delivery-service/internal/services"
)

type OptimizeHandler struct {
	Planner *services.RoutePlanner
}

func (h *OptimizeHandler) Pending(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	route, err := h.Planner.OptimizePending(r.Context(), req.StartCoordinates())
	if err != nil {
		writeDomainError(w, r, "optimize.Pending", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.RouteFrom(route))
}

func (h *OptimizeHandler) Agent(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	route, err := h.Planner.OptimizeAgent(r.Context(), chi.URLParam(r, "id"), req.StartCoordinates())
	if err != nil {
		writeDomainError(w, r, "optimize.Agent", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.RouteFrom(route))
}
