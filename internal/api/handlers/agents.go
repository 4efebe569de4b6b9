package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pharmacy-delivery-service/internal/api/dto"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/services"
)

type AgentHandler struct {
	Store    *assignment.Store
	Location *services.LocationService
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAgentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	agent, err := req.ToDomain()
	if err != nil {
		writeDomainError(w, r, "agents.Create", err)
		return
	}

	agent, err = h.Store.AddAgent(r.Context(), agent)
	if err != nil {
		writeDomainError(w, r, "agents.Create", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, dto.AgentFrom(agent))
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, dto.AgentsFrom(h.Store.Agents()))
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.Agent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "agents.Get", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.AgentFrom(agent))
}

func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.StatusRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	status, err := domain.ParseAgentStatus(req.Status)
	if err != nil {
		writeDomainError(w, r, "agents.SetStatus", err)
		return
	}

	agent, err := h.Location.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeDomainError(w, r, "agents.SetStatus", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.AgentFrom(agent))
}

func (h *AgentHandler) Stops(w http.ResponseWriter, r *http.Request) {
	stops, err := h.Store.StopsFor(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "agents.Stops", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopsFrom(stops))
}

func (h *AgentHandler) ReorderStops(w http.ResponseWriter, r *http.Request) {
	var req dto.ReorderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	stops, err := h.Store.ReorderAssigned(r.Context(), chi.URLParam(r, "id"), req.IDs)
	if err != nil {
		writeDomainError(w, r, "agents.ReorderStops", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.StopsFrom(stops))
}

// PushFix accepts a single device reading for devices that cannot hold a
// WebSocket open.
func (h *AgentHandler) PushFix(w http.ResponseWriter, r *http.Request) {
	var req dto.FixRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	agentID := chi.URLParam(r, "id")
	if _, err := h.Store.Agent(agentID); err != nil {
		writeDomainError(w, r, "agents.PushFix", err)
		return
	}

	evt, res, err := h.Location.Ingest(r.Context(), agentID, req.ToFix())
	if err != nil {
		writeDomainError(w, r, "agents.PushFix", err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, dto.FixResponseFrom(evt, res))
}
