package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/service"
	"go.uber.org/zap"
)

type ReflectionHandler struct {
	reflections *service.ReflectionService
	evaluator   *service.TriggerEvaluator
	agents      *service.AgentService
	logger      *zap.Logger
}

func NewReflectionHandler(rs *service.ReflectionService, ev *service.TriggerEvaluator, as *service.AgentService, logger *zap.Logger) *ReflectionHandler {
	return &ReflectionHandler{reflections: rs, evaluator: ev, agents: as, logger: logger}
}

type reflectRequest struct {
	Trigger domain.ReflectionTrigger `json:"trigger"`
	Context string                   `json:"context"`
}

// Reflect runs a reflection now. The trigger defaults to external. The call
// waits if the agent is already reflecting.
func (h *ReflectionHandler) Reflect(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	var req reflectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Trigger == "" {
		req.Trigger = domain.TriggerExternal
	}

	agent, err := h.agents.GetByID(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get agent")
		return
	}

	refl, err := h.reflections.RunReflection(r.Context(), agent, req.Trigger, req.Context)
	if err != nil {
		writeServiceError(w, h.logger, err, "reflection failed")
		return
	}
	if err := h.agents.Touch(r.Context(), agentID); err != nil {
		h.logger.Warn("failed to touch agent after reflection", zap.String("agent_id", agentID.String()), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, refl)
}

func (h *ReflectionHandler) ShouldReflect(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	agent, err := h.agents.GetByID(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get agent")
		return
	}
	decision, err := h.evaluator.EvaluateReflectionTrigger(r.Context(), agent)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to evaluate reflection trigger")
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *ReflectionHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	driftOnly, _ := strconv.ParseBool(r.URL.Query().Get("drift_only"))

	out, err := h.reflections.ReflectionHistory(r.Context(), agentID, limit, driftOnly)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list reflections")
		return
	}
	writeJSON(w, http.StatusOK, newList(out))
}

func (h *ReflectionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	refl, err := h.reflections.LatestReflection(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get latest reflection")
		return
	}
	writeJSON(w, http.StatusOK, refl)
}

func (h *ReflectionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reflection id")
		return
	}
	refl, err := h.reflections.GetReflection(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get reflection")
		return
	}
	writeJSON(w, http.StatusOK, refl)
}

// Drift returns the agent's identity change log, oldest first.
func (h *ReflectionHandler) Drift(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	entries, err := h.reflections.DriftHistory(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to read drift log")
		return
	}
	writeJSON(w, http.StatusOK, newList(entries))
}
