package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fixedClock pins timeNow for the duration of a test.
func fixedClock(t interface{ Cleanup(func()) }, at time.Time) {
	prev := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = prev })
}

// mockAgentStore implements domain.AgentStore for testing.
type mockAgentStore struct {
	mu     sync.Mutex
	agents map[uuid.UUID]*domain.Agent
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{agents: make(map[uuid.UUID]*domain.Agent)}
}

func (m *mockAgentStore) Create(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.agents {
		if existing.Handle == a.Handle {
			return store.ErrConflict
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAgentStore) GetByHandle(ctx context.Context, handle string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.Handle == handle {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockAgentStore) List(ctx context.Context, f domain.AgentFilter) ([]domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Agent
	for _, a := range m.agents {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (m *mockAgentStore) Update(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockAgentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockAgentStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to domain.AgentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (m *mockAgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

func (m *mockAgentStore) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.LastActive = at
	return nil
}

func (m *mockAgentStore) UpdateIdentityEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.IdentityEmbedding = embedding
	return nil
}

func (m *mockAgentStore) FindSimilar(ctx context.Context, id uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.AgentSimilarity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentSimilarity
	for _, a := range m.agents {
		if a.ID == id || len(a.IdentityEmbedding) == 0 {
			continue
		}
		sim := dot(embedding, a.IdentityEmbedding)
		if sim >= threshold {
			out = append(out, domain.AgentSimilarity{Agent: *a, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// mockMemoryStore implements domain.MemoryStore and SimilaritySearcher.
type mockMemoryStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*domain.Memory
	order    []uuid.UUID

	listErr   error
	accessErr error
	listCalls int
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{memories: make(map[uuid.UUID]*domain.Memory)}
}

func (m *mockMemoryStore) Create(ctx context.Context, mem *domain.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(mem)
	return nil
}

func (m *mockMemoryStore) put(mem *domain.Memory) {
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = timeNow().UTC()
	}
	if mem.AccessedAt.IsZero() {
		mem.AccessedAt = mem.CreatedAt
	}
	cp := *mem
	if _, exists := m.memories[mem.ID]; !exists {
		m.order = append(m.order, mem.ID)
	}
	m.memories[mem.ID] = &cp
}

func (m *mockMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func matchesFilter(mem *domain.Memory, f domain.MemoryFilter) bool {
	switch {
	case mem.AgentID != f.AgentID:
		return false
	case f.Tier != nil && mem.Tier != *f.Tier:
		return false
	case f.ExcludeTier != nil && mem.Tier == *f.ExcludeTier:
		return false
	case f.Kind != nil && mem.Kind != *f.Kind:
		return false
	case f.ExcludeKind != nil && mem.Kind == *f.ExcludeKind:
		return false
	case f.CreatedSince != nil && mem.CreatedAt.Before(*f.CreatedSince):
		return false
	case f.CreatedBefore != nil && !mem.CreatedAt.Before(*f.CreatedBefore):
		return false
	case f.ImportanceAtLeast != nil && mem.Importance < *f.ImportanceAtLeast:
		return false
	case f.ImportanceBelow != nil && mem.Importance >= *f.ImportanceBelow:
		return false
	case f.AccessCountAtLeast != nil && mem.AccessCount < *f.AccessCountAtLeast:
		return false
	case f.AccessCountBelow != nil && mem.AccessCount >= *f.AccessCountBelow:
		return false
	}
	return true
}

func (m *mockMemoryStore) List(ctx context.Context, q domain.MemoryQuery) ([]domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Memory
	for _, id := range m.order {
		mem, ok := m.memories[id]
		if ok && matchesFilter(mem, q.Filter) {
			out = append(out, *mem)
		}
	}
	newestFirst := func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) }
	switch q.Order {
	case domain.OrderImportanceAsc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Importance != out[j].Importance {
				return out[i].Importance < out[j].Importance
			}
			return newestFirst(i, j)
		})
	case domain.OrderAccessCountAsc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].AccessCount != out[j].AccessCount {
				return out[i].AccessCount < out[j].AccessCount
			}
			return newestFirst(i, j)
		})
	default:
		sort.SliceStable(out, newestFirst)
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *mockMemoryStore) UpdateTier(ctx context.Context, agentID uuid.UUID, ids []uuid.UUID, from, to domain.MemoryTier) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		mem, ok := m.memories[id]
		if ok && mem.AgentID == agentID && mem.Tier == from {
			mem.Tier = to
			n++
		}
	}
	return n, nil
}

func (m *mockMemoryStore) RecordAccess(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessErr != nil {
		return m.accessErr
	}
	for _, id := range ids {
		if mem, ok := m.memories[id]; ok {
			mem.AccessCount++
			mem.AccessedAt = at
		}
	}
	return nil
}

func (m *mockMemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memories[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.memories, id)
	return nil
}

func (m *mockMemoryStore) CountByTier(ctx context.Context, agentID uuid.UUID) (map[domain.MemoryTier]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.MemoryTier]int)
	for _, mem := range m.memories {
		if mem.AgentID == agentID {
			out[mem.Tier]++
		}
	}
	return out, nil
}

func (m *mockMemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := timeNow()
	var n int64
	for id, mem := range m.memories {
		if mem.ExpiresAt != nil && mem.ExpiresAt.Before(now) {
			delete(m.memories, id)
			n++
		}
	}
	return n, nil
}

// SimilaritySearch scores by dot product of the stored unit vectors.
func (m *mockMemoryStore) SimilaritySearch(ctx context.Context, agentID uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.MemorySearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MemorySearchResult
	for _, mem := range m.memories {
		if mem.AgentID != agentID || mem.Tier == domain.TierArchive || len(mem.Embedding) == 0 {
			continue
		}
		sim := dot(embedding, mem.Embedding)
		if sim >= threshold {
			out = append(out, domain.MemorySearchResult{Memory: *mem, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockMemoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memories)
}

// stubSearcher returns canned hits regardless of the query.
type stubSearcher struct {
	hits []domain.MemorySearchResult
}

func (s *stubSearcher) SimilaritySearch(ctx context.Context, agentID uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.MemorySearchResult, error) {
	return append([]domain.MemorySearchResult(nil), s.hits...), nil
}

// mockReflectionStore applies a commit to the memory and agent mocks only
// when the whole commit succeeds.
type mockReflectionStore struct {
	mu          sync.Mutex
	reflections map[uuid.UUID]*domain.Reflection
	memories    *mockMemoryStore
	agents      *mockAgentStore

	// commitErr fails the commit after beforeCommit has run.
	commitErr error
	persisted int
}

func newMockReflectionStore(ms *mockMemoryStore, as *mockAgentStore) *mockReflectionStore {
	return &mockReflectionStore{
		reflections: make(map[uuid.UUID]*domain.Reflection),
		memories:    ms,
		agents:      as,
	}
}

func (m *mockReflectionStore) Persist(ctx context.Context, c domain.ReflectionCommit, beforeCommit func(ctx context.Context) error) error {
	if c.Reflection == nil {
		return errors.New("nil reflection")
	}
	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}
	if m.commitErr != nil {
		return m.commitErr
	}

	m.mu.Lock()
	cp := *c.Reflection
	m.reflections[cp.ID] = &cp
	m.persisted++
	m.mu.Unlock()

	if c.Memory != nil {
		_ = m.memories.Create(ctx, c.Memory)
	}
	if len(c.IdentityEmbedding) > 0 {
		_ = m.agents.UpdateIdentityEmbedding(ctx, c.Reflection.AgentID, c.IdentityEmbedding)
	}
	return nil
}

func (m *mockReflectionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reflections[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReflectionStore) ListByAgent(ctx context.Context, agentID uuid.UUID, opts domain.ReflectionListOpts) ([]domain.Reflection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reflection
	for _, r := range m.reflections {
		if r.AgentID != agentID || (opts.DriftOnly && !r.DriftDetected) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockReflectionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reflections)
}

// mockDocumentStore keeps identity documents in memory.
type mockDocumentStore struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*domain.IdentityDocuments
	commitErr error
	initErr   error
	commits   int
}

func newMockDocumentStore() *mockDocumentStore {
	return &mockDocumentStore{docs: make(map[uuid.UUID]*domain.IdentityDocuments)}
}

func (m *mockDocumentStore) ReadIdentityDocuments(ctx context.Context, agentID uuid.UUID) (*domain.IdentityDocuments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[agentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	cp.DriftLog = append([]domain.DriftLogEntry(nil), d.DriftLog...)
	return &cp, nil
}

func (m *mockDocumentStore) WriteIdentityDocument(ctx context.Context, agentID uuid.UUID, kind domain.DocumentKind, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[agentID]
	if !ok {
		d = &domain.IdentityDocuments{}
		m.docs[agentID] = d
	}
	switch kind {
	case domain.DocumentLore:
		d.Lore = text
	case domain.DocumentSoul:
		d.Soul = text
	case domain.DocumentIdentity:
		d.Identity = text
	}
	return "mem:" + agentID.String() + "/" + string(kind), nil
}

func (m *mockDocumentStore) AppendDriftLogEntry(ctx context.Context, agentID uuid.UUID, entry domain.DriftLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[agentID]
	if !ok {
		return domain.ErrNotFound
	}
	d.DriftLog = append(d.DriftLog, entry)
	return nil
}

func (m *mockDocumentStore) CommitIdentityDrift(ctx context.Context, agentID uuid.UUID, identity string, entry domain.DriftLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	d, ok := m.docs[agentID]
	if !ok {
		return domain.ErrNotFound
	}
	d.Identity = identity
	d.DriftLog = append(d.DriftLog, entry)
	m.commits++
	return nil
}

func (m *mockDocumentStore) InitializeDocuments(ctx context.Context, agentID uuid.UUID, docs domain.IdentityDocuments) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	cp := docs
	m.docs[agentID] = &cp
	return nil
}

// failingEmbedder fails every call.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// recordingIndexer captures index removals.
type recordingIndexer struct {
	mu      sync.Mutex
	removed []uuid.UUID
}

func (r *recordingIndexer) Index(ctx context.Context, m domain.Memory) error { return nil }

func (r *recordingIndexer) Remove(ctx context.Context, agentID, memoryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, memoryID)
	return nil
}
