package service

import (
	"context"
	"sort"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	DefaultSearchLimit     = 10
	MaxSearchLimit         = 100
	DefaultSearchThreshold = 0.7
	DefaultListLimit       = 50
)

type MemoryService struct {
	memoryStore domain.MemoryStore
	agentStore  domain.AgentStore
	embedder    domain.Embedder
	searcher    domain.SimilaritySearcher
	indexer     domain.MemoryIndexer
	metrics     *telemetry.Metrics
	logger      *zap.Logger
}

func NewMemoryService(ms domain.MemoryStore, as domain.AgentStore, emb domain.Embedder, searcher domain.SimilaritySearcher, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		memoryStore: ms,
		agentStore:  as,
		embedder:    emb,
		searcher:    searcher,
		logger:      logger,
	}
}

// SetIndexer registers a search backend that keeps its own copy of
// embeddings and must hear about writes.
func (s *MemoryService) SetIndexer(ix domain.MemoryIndexer) {
	s.indexer = ix
}

func (s *MemoryService) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

type CreateMemoryInput struct {
	AgentID          uuid.UUID          `json:"agent_id" yaml:"-"`
	Content          string             `json:"content" yaml:"content"`
	Kind             domain.MemoryKind  `json:"kind,omitempty" yaml:"kind"`
	Tier             domain.MemoryTier  `json:"tier,omitempty" yaml:"tier"`
	Importance       *float64           `json:"importance,omitempty" yaml:"importance"`
	EmotionalValence map[string]float64 `json:"emotional_valence,omitempty" yaml:"emotional_valence"`
	SourceKind       string             `json:"source_kind,omitempty" yaml:"source_kind"`
	SourceID         *uuid.UUID         `json:"source_id,omitempty" yaml:"-"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty" yaml:"expires_at"`
}

// Create stores a memory. Kind defaults to interaction, tier to rag and
// importance to 0.5. Embedding the content is best effort: a memory without
// an embedding is still listed but never found by search.
func (s *MemoryService) Create(ctx context.Context, in CreateMemoryInput) (*domain.Memory, error) {
	m := &domain.Memory{
		AgentID:          in.AgentID,
		Content:          in.Content,
		Kind:             in.Kind,
		Tier:             in.Tier,
		Importance:       domain.DefaultImportance,
		EmotionalValence: in.EmotionalValence,
		SourceKind:       in.SourceKind,
		SourceID:         in.SourceID,
		ExpiresAt:        in.ExpiresAt,
	}
	if m.Kind == "" {
		m.Kind = domain.MemoryKindInteraction
	}
	if m.Tier == "" {
		m.Tier = domain.TierRAG
	}
	if in.Importance != nil {
		m.Importance = *in.Importance
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := s.requireAgent(ctx, m.AgentID); err != nil {
		return nil, err
	}

	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, m.Content)
		if err != nil {
			s.logger.Warn("memory embedding failed, storing without embedding",
				zap.String("agent_id", m.AgentID.String()), zap.Error(err))
		} else {
			m.Embedding = emb
		}
	}

	if err := s.memoryStore.Create(ctx, m); err != nil {
		return nil, storeErr("create memory", err)
	}

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, *m); err != nil {
			s.logger.Warn("memory indexing failed", zap.String("memory_id", m.ID.String()), zap.Error(err))
		}
	}
	return m, nil
}

func (s *MemoryService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m, err := s.memoryStore.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMemoryNotFound
		}
		return nil, storeErr("get memory", err)
	}
	return m, nil
}

func (s *MemoryService) Delete(ctx context.Context, id uuid.UUID) error {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.memoryStore.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return ErrMemoryNotFound
		}
		return storeErr("delete memory", err)
	}
	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, m.AgentID, id); err != nil {
			s.logger.Warn("memory unindex failed", zap.String("memory_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

// ListRecent returns the agent's newest memories, optionally limited to one tier.
func (s *MemoryService) ListRecent(ctx context.Context, agentID uuid.UUID, tier *domain.MemoryTier, limit, offset int) ([]domain.Memory, error) {
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxSearchLimit {
		return nil, ErrInvalidLimit
	}
	if tier != nil && !domain.ValidTier(string(*tier)) {
		return nil, ErrInvalidTier
	}
	mems, err := s.memoryStore.List(ctx, domain.MemoryQuery{
		Filter: domain.MemoryFilter{AgentID: agentID, Tier: tier},
		Order:  domain.OrderCreatedDesc,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, storeErr("list memories", err)
	}
	return mems, nil
}

func (s *MemoryService) Stats(ctx context.Context, agentID uuid.UUID) (*domain.MemoryStats, error) {
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	counts, err := s.memoryStore.CountByTier(ctx, agentID)
	if err != nil {
		return nil, storeErr("count memories", err)
	}
	stats := &domain.MemoryStats{AgentID: agentID, ByTier: make(map[domain.MemoryTier]int, 3)}
	for _, t := range domain.AllTiers() {
		stats.ByTier[t] = counts[t]
		stats.Total += counts[t]
	}
	return stats, nil
}

type SearchParams struct {
	Query     string
	Limit     int      // 0 selects DefaultSearchLimit
	Threshold *float64 // nil selects DefaultSearchThreshold
	Kind      *domain.MemoryKind
}

// SearchMemories finds the agent's memories closest in meaning to the query.
// Every returned memory has its access counter bumped; a failure to record
// access is logged and does not fail the search.
func (s *MemoryService) SearchMemories(ctx context.Context, agentID uuid.UUID, p SearchParams) (results []domain.MemorySearchResult, err error) {
	limit := p.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, ErrInvalidLimit
	}
	threshold := DefaultSearchThreshold
	if p.Threshold != nil {
		threshold = *p.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if p.Query == "" {
		return nil, ErrQueryEmpty
	}
	if p.Kind != nil && !domain.ValidMemoryKind(string(*p.Kind)) {
		return nil, ErrInvalidKind
	}
	if err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSearchSpan(ctx, agentID, limit)
	defer func() { telemetry.EndSpan(span, err) }()

	vec, err := s.embedder.Embed(ctx, p.Query)
	if err != nil {
		return nil, generationErr("embed query", err)
	}

	hits, err := s.searcher.SimilaritySearch(ctx, agentID, vec, float32(threshold), limit)
	if err != nil {
		return nil, storeErr("similarity search", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	results = make([]domain.MemorySearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Tier == domain.TierArchive {
			continue
		}
		if p.Kind != nil && h.Kind != *p.Kind {
			continue
		}
		results = append(results, h)
		if len(results) == limit {
			break
		}
	}

	if len(results) > 0 {
		now := timeNow().UTC()
		ids := make([]uuid.UUID, len(results))
		for i := range results {
			ids[i] = results[i].ID
		}
		if err := s.memoryStore.RecordAccess(ctx, ids, now); err != nil {
			s.logger.Warn("failed to record memory access",
				zap.String("agent_id", agentID.String()), zap.Int("count", len(ids)), zap.Error(err))
		} else {
			for i := range results {
				results[i].AccessCount++
				results[i].AccessedAt = now
			}
		}
	}

	if s.metrics != nil {
		s.metrics.Searches.Add(ctx, 1, metric.WithAttributes(attribute.Int("results", len(results))))
	}
	return results, nil
}

func (s *MemoryService) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.memoryStore.DeleteExpired(ctx)
	if err != nil {
		return 0, storeErr("delete expired memories", err)
	}
	return n, nil
}

func (s *MemoryService) requireAgent(ctx context.Context, agentID uuid.UUID) error {
	if _, err := s.agentStore.GetByID(ctx, agentID); err != nil {
		if isNotFound(err) {
			return ErrAgentNotFound
		}
		return storeErr("get agent", err)
	}
	return nil
}

// timeNow is swapped in tests.
var timeNow = time.Now
