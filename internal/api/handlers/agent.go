package handlers

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AgentHandler struct {
	svc    *service.AgentService
	logger *zap.Logger
}

func NewAgentHandler(svc *service.AgentService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{svc: svc, logger: logger}
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAgentInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create agent")
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	var f domain.AgentFilter
	if s := r.URL.Query().Get("status"); s != "" {
		f.Status = domain.Ptr(domain.AgentStatus(s))
	}
	var err error
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	agents, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, newList(agents))
}

func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	agent, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) GetByHandle(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.GetByHandle(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	var req domain.AgentUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type transitionResponse struct {
	AgentID        string             `json:"agent_id"`
	PreviousStatus domain.AgentStatus `json:"previous_status"`
	Status         domain.AgentStatus `json:"status"`
}

func (h *AgentHandler) Wake(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.AgentStatusActive, h.svc.Wake)
}

func (h *AgentHandler) Sleep(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.AgentStatusDormant, h.svc.Sleep)
}

func (h *AgentHandler) transition(w http.ResponseWriter, r *http.Request, to domain.AgentStatus, fn func(context.Context, uuid.UUID) (domain.AgentStatus, error)) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	prev, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to change agent status")
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{AgentID: id.String(), PreviousStatus: prev, Status: to})
}

func (h *AgentHandler) Identity(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	docs, err := h.svc.Identity(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to read identity")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *AgentHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	threshold, err := queryFloat(r, "threshold")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid threshold")
		return
	}
	if threshold == nil {
		threshold = domain.Ptr(service.DefaultSimilarAgentThreshold)
	}
	limit, err := queryInt(r, "limit", service.DefaultSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	similar, err := h.svc.FindSimilar(r.Context(), id, float32(*threshold), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to find similar agents")
		return
	}
	writeJSON(w, http.StatusOK, newList(similar))
}
