package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/service"
	"go.uber.org/zap"
)

// SearchDefaults fill in search parameters the caller leaves out. A nil
// Threshold leaves the service default in place.
type SearchDefaults struct {
	Limit     int
	Threshold *float64
}

type MemoryHandler struct {
	memories   *service.MemoryService
	agents     *service.AgentService
	workingSet *service.WorkingSetBuilder
	tiers      *service.TierService
	defaults   SearchDefaults
	logger     *zap.Logger
}

func NewMemoryHandler(
	memories *service.MemoryService,
	agents *service.AgentService,
	workingSet *service.WorkingSetBuilder,
	tiers *service.TierService,
	defaults SearchDefaults,
	logger *zap.Logger,
) *MemoryHandler {
	return &MemoryHandler{
		memories:   memories,
		agents:     agents,
		workingSet: workingSet,
		tiers:      tiers,
		defaults:   defaults,
		logger:     logger,
	}
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateMemoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.memories.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create memory")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	m, err := h.memories.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to get memory")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}
	if err := h.memories.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "failed to delete memory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns an agent's newest memories, optionally one tier only.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
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
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	var tier *domain.MemoryTier
	if s := r.URL.Query().Get("tier"); s != "" {
		tier = domain.Ptr(domain.MemoryTier(s))
	}

	mems, err := h.memories.ListRecent(r.Context(), agentID, tier, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list memories")
		return
	}
	writeJSON(w, http.StatusOK, newList(mems))
}

type searchResponse struct {
	Query   string                      `json:"query"`
	Results []domain.MemorySearchResult `json:"results"`
	Count   int                         `json:"count"`
}

func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	p := service.SearchParams{Query: r.URL.Query().Get("query")}
	var err error
	p.Limit, err = queryInt(r, "limit", h.defaults.Limit)
	if err != nil || (r.URL.Query().Has("limit") && p.Limit < 1) {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if p.Threshold, err = queryFloat(r, "threshold"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid threshold")
		return
	}
	if p.Threshold == nil {
		p.Threshold = h.defaults.Threshold
	}
	if s := r.URL.Query().Get("kind"); s != "" {
		p.Kind = domain.Ptr(domain.MemoryKind(s))
	}

	results, err := h.memories.SearchMemories(r.Context(), agentID, p)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to search memories")
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: p.Query, Results: results, Count: len(results)})
}

// WorkingSet builds the agent's context window for one request.
func (h *MemoryHandler) WorkingSet(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	maxTokens, err := queryInt(r, "max_tokens", domain.DefaultWorkingMemoryTokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_tokens")
		return
	}
	if err := domain.ValidateTokenBudget(maxTokens); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.agents.GetByID(r.Context(), agentID); err != nil {
		writeServiceError(w, h.logger, err, "failed to get agent")
		return
	}

	wm, err := h.workingSet.BuildWorkingMemory(r.Context(), agentID, maxTokens)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to build working set")
		return
	}
	writeJSON(w, http.StatusOK, wm)
}

type archiveRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

type archiveResponse struct {
	AgentID       string `json:"agent_id"`
	OlderThanDays int    `json:"older_than_days"`
	Archived      int    `json:"archived"`
}

// Archive runs tier migration for one agent on demand.
func (h *MemoryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	req := archiveRequest{OlderThanDays: domain.DefaultArchiveAfterDays}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if _, err := h.agents.GetByID(r.Context(), agentID); err != nil {
		writeServiceError(w, h.logger, err, "failed to get agent")
		return
	}

	moved, err := h.tiers.MigrateStaleMemories(r.Context(), agentID, req.OlderThanDays)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to archive memories")
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{AgentID: agentID.String(), OlderThanDays: req.OlderThanDays, Archived: moved})
}

func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	agentID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	stats, err := h.memories.Stats(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to count memories")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
