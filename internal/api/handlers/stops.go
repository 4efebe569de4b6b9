package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmacy-delivery-service/internal/api/dto"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/services"
)

type StopHandler struct {
	Store    *assignment.Store
	Dispatch *services.DispatchService
}

func (h *StopHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateStopRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	stop, err := h.Store.AddStop(r.Context(), req.ToDomain())
	if err != nil {
		writeDomainError(w, r, "stops.Create", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dto.StopFrom(stop))
}

func (h *StopHandler) Get(w http.ResponseWriter, r *http.Request) {
	stop, err := h.Store.Stop(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "stops.Get", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopFrom(stop))
}

func (h *StopHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, dto.StopsFrom(h.Store.Pending()))
}

func (h *StopHandler) ReorderPending(w http.ResponseWriter, r *http.Request) {
	var req dto.ReorderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	stops, err := h.Store.ReorderPending(r.Context(), req.IDs)
	if err != nil {
		writeDomainError(w, r, "stops.ReorderPending", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopsFrom(stops))
}

func (h *StopHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req dto.AssignRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.AgentID == "" {
		writeError(w, r, http.StatusBadRequest, "agent_id is required")
		return
	}

	stop, err := h.Dispatch.Assign(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		writeDomainError(w, r, "stops.Assign", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopFrom(stop))
}

func (h *StopHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	stop, err := h.Dispatch.Unassign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "stops.Unassign", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopFrom(stop))
}

func (h *StopHandler) Complete(w http.ResponseWriter, r *http.Request) {
	req := dto.CompleteRequest{Status: string(domain.StopDelivered)}
	if !decodeJSON(w, r, &req, true) {
		return
	}
	status, err := domain.ParseStopStatus(req.Status)
	if err != nil {
		writeDomainError(w, r, "stops.Complete", err)
		return
	}

	stop, err := h.Dispatch.Complete(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeDomainError(w, r, "stops.Complete", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopFrom(stop))
}
