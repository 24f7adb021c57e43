package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/Harshitk-cp/soulgarden/internal/embedding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAgent(t *testing.T, as *mockAgentStore, handle string) *domain.Agent {
	t.Helper()
	a := &domain.Agent{
		Name:                handle,
		Handle:              handle,
		Status:              domain.AgentStatusActive,
		ReflectionDepth:     3,
		AutoReflectInterval: 3600,
		LastActive:          testNow,
	}
	require.NoError(t, as.Create(context.Background(), a))
	return a
}

type memoryFixture struct {
	svc      *MemoryService
	memories *mockMemoryStore
	agents   *mockAgentStore
	embedder *embedding.MockClient
	agent    *domain.Agent
}

func newMemoryFixture(t *testing.T) *memoryFixture {
	fixedClock(t, testNow)
	ms := newMockMemoryStore()
	as := newMockAgentStore()
	emb := embedding.NewMockClient(1024)
	return &memoryFixture{
		svc:      NewMemoryService(ms, as, emb, ms, testLogger()),
		memories: ms,
		agents:   as,
		embedder: emb,
		agent:    seedAgent(t, as, "nova"),
	}
}

func (f *memoryFixture) create(t *testing.T, content string, kind domain.MemoryKind) *domain.Memory {
	t.Helper()
	m, err := f.svc.Create(context.Background(), CreateMemoryInput{AgentID: f.agent.ID, Content: content, Kind: kind})
	require.NoError(t, err)
	return m
}

func TestMemoryCreateDefaults(t *testing.T) {
	f := newMemoryFixture(t)

	m := f.create(t, "watched the tide come in", "")
	assert.Equal(t, domain.MemoryKindInteraction, m.Kind)
	assert.Equal(t, domain.TierRAG, m.Tier)
	assert.Equal(t, domain.DefaultImportance, m.Importance)
	assert.NotEmpty(t, m.Embedding)
	assert.NotEqual(t, uuid.Nil, m.ID)
}

func TestMemoryCreateValidation(t *testing.T) {
	f := newMemoryFixture(t)
	tests := []struct {
		name string
		in   CreateMemoryInput
		want error
	}{
		{"empty content", CreateMemoryInput{AgentID: f.agent.ID}, domain.ErrValidation},
		{"bad kind", CreateMemoryInput{AgentID: f.agent.ID, Content: "x", Kind: "gossip"}, domain.ErrValidation},
		{"bad tier", CreateMemoryInput{AgentID: f.agent.ID, Content: "x", Tier: "cold"}, domain.ErrValidation},
		{"importance above one", CreateMemoryInput{AgentID: f.agent.ID, Content: "x", Importance: domain.Ptr(1.2)}, domain.ErrValidation},
		{"unknown agent", CreateMemoryInput{AgentID: uuid.New(), Content: "x"}, ErrAgentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.memories.count())
}

func TestMemoryCreateWithoutEmbedding(t *testing.T) {
	f := newMemoryFixture(t)
	f.embedder.Err = errors.New("rate limited")

	m := f.create(t, "still remembered", domain.MemoryKindExternal)
	assert.Empty(t, m.Embedding)
	assert.Equal(t, 1, f.memories.count())
}

func TestSearchMemoriesValidation(t *testing.T) {
	f := newMemoryFixture(t)
	kind := domain.MemoryKind("rumor")
	tests := []struct {
		name string
		p    SearchParams
	}{
		{"empty query", SearchParams{}},
		{"limit too large", SearchParams{Query: "q", Limit: MaxSearchLimit + 1}},
		{"negative limit", SearchParams{Query: "q", Limit: -1}},
		{"threshold above one", SearchParams{Query: "q", Threshold: domain.Ptr(1.5)}},
		{"negative threshold", SearchParams{Query: "q", Threshold: domain.Ptr(-0.1)}},
		{"unknown kind", SearchParams{Query: "q", Kind: &kind}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SearchMemories(context.Background(), f.agent.ID, tt.p)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.embedder.Calls)

	_, err := f.svc.SearchMemories(context.Background(), uuid.New(), SearchParams{Query: "q"})
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestSearchMemoriesRanksAndRecordsAccess(t *testing.T) {
	f := newMemoryFixture(t)
	garden := f.create(t, "tending the garden at dawn", domain.MemoryKindInteraction)
	gardenRoses := f.create(t, "garden roses bloom", domain.MemoryKindInteraction)
	f.create(t, "quarterly tax filing", domain.MemoryKindInteraction)

	results, err := f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{
		Query:     "garden roses",
		Threshold: domain.Ptr(0.3),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, gardenRoses.ID, results[0].ID)
	assert.Equal(t, garden.ID, results[1].ID)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)

	for _, r := range results {
		assert.Equal(t, 1, r.AccessCount)
		assert.Equal(t, testNow.UTC(), r.AccessedAt)
		stored, err := f.memories.GetByID(context.Background(), r.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.AccessCount)
	}
}

func TestSearchMemoriesExcludesArchive(t *testing.T) {
	f := newMemoryFixture(t)
	kept := f.create(t, "lantern festival", domain.MemoryKindInteraction)
	archived := f.create(t, "lantern festival", domain.MemoryKindInteraction)
	_, err := f.memories.UpdateTier(context.Background(), f.agent.ID, []uuid.UUID{archived.ID}, domain.TierRAG, domain.TierArchive)
	require.NoError(t, err)

	results, err := f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{Query: "lantern festival"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, kept.ID, results[0].ID)

	// a backend that leaks archived hits is still filtered
	stale := domain.MemorySearchResult{Memory: domain.Memory{ID: archived.ID, AgentID: f.agent.ID, Tier: domain.TierArchive}, Similarity: 0.99}
	f.svc.searcher = &stubSearcher{hits: []domain.MemorySearchResult{stale}}
	results, err = f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{Query: "lantern festival"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchMemoriesKindFilterAndLimit(t *testing.T) {
	f := newMemoryFixture(t)
	hits := []domain.MemorySearchResult{
		{Memory: domain.Memory{ID: uuid.New(), Kind: domain.MemoryKindDream, Tier: domain.TierRAG}, Similarity: 0.8},
		{Memory: domain.Memory{ID: uuid.New(), Kind: domain.MemoryKindGoal, Tier: domain.TierRAG}, Similarity: 0.95},
		{Memory: domain.Memory{ID: uuid.New(), Kind: domain.MemoryKindDream, Tier: domain.TierWorking}, Similarity: 0.9},
	}
	f.svc.searcher = &stubSearcher{hits: hits}

	results, err := f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{
		Query: "flying",
		Kind:  domain.Ptr(domain.MemoryKindDream),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, hits[2].ID, results[0].ID)
	assert.Equal(t, hits[0].ID, results[1].ID)

	results, err = f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{Query: "flying", Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hits[1].ID, results[0].ID)
}

func TestSearchMemoriesToleratesAccessFailure(t *testing.T) {
	f := newMemoryFixture(t)
	f.create(t, "harbor lights", domain.MemoryKindInteraction)
	f.memories.accessErr = errors.New("deadlock")

	results, err := f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{Query: "harbor lights"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].AccessCount)
}

func TestSearchMemoriesEmbedFailure(t *testing.T) {
	f := newMemoryFixture(t)
	f.embedder.Err = errors.New("provider down")

	_, err := f.svc.SearchMemories(context.Background(), f.agent.ID, SearchParams{Query: "anything"})
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestMemoryListStatsDelete(t *testing.T) {
	f := newMemoryFixture(t)
	a := f.create(t, "one", domain.MemoryKindInteraction)
	b := f.create(t, "two", domain.MemoryKindInteraction)
	_, err := f.memories.UpdateTier(context.Background(), f.agent.ID, []uuid.UUID{b.ID}, domain.TierRAG, domain.TierArchive)
	require.NoError(t, err)

	rag, err := f.svc.ListRecent(context.Background(), f.agent.ID, domain.Ptr(domain.TierRAG), 0, 0)
	require.NoError(t, err)
	require.Len(t, rag, 1)
	assert.Equal(t, a.ID, rag[0].ID)

	_, err = f.svc.ListRecent(context.Background(), f.agent.ID, domain.Ptr(domain.MemoryTier("cold")), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidTier)

	stats, err := f.svc.Stats(context.Background(), f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, map[domain.MemoryTier]int{domain.TierWorking: 0, domain.TierRAG: 1, domain.TierArchive: 1}, stats.ByTier)

	require.NoError(t, f.svc.Delete(context.Background(), a.ID))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), a.ID), ErrMemoryNotFound)
	_, err = f.svc.GetByID(context.Background(), a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
