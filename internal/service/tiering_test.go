package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestMigrateStaleMemories(t *testing.T) {
	fixedClock(t, testNow)
	ms := newMockMemoryStore()
	pub := &recordingPublisher{}
	svc := NewTierService(ms, testLogger())
	svc.SetEventPublisher(pub)
	agentID := uuid.New()

	stale := addMemory(ms, agentID, 5, 40*day, 0.3, 1)
	recent := addMemory(ms, agentID, 5, 10*day, 0.3, 1)
	important := addMemory(ms, agentID, 5, 40*day, 0.5, 0)
	popular := addMemory(ms, agentID, 5, 40*day, 0.1, 2)
	other := addMemory(ms, uuid.New(), 5, 40*day, 0.1, 0)

	moved, err := svc.MigrateStaleMemories(context.Background(), agentID, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	tierOf := func(id uuid.UUID) domain.MemoryTier {
		m, err := ms.GetByID(context.Background(), id)
		require.NoError(t, err)
		return m.Tier
	}
	assert.Equal(t, domain.TierArchive, tierOf(stale.ID))
	assert.Equal(t, domain.TierRAG, tierOf(recent.ID))
	assert.Equal(t, domain.TierRAG, tierOf(important.ID))
	assert.Equal(t, domain.TierRAG, tierOf(popular.ID))
	assert.Equal(t, domain.TierRAG, tierOf(other.ID))

	require.Len(t, pub.events, 1)
	e := pub.events[0]
	assert.Equal(t, domain.EventMemoriesArchived, e.Type)
	assert.Equal(t, agentID, e.AgentID)
	assert.Equal(t, domain.TierTransition{
		AgentID:    agentID,
		FromTier:   domain.TierRAG,
		ToTier:     domain.TierArchive,
		Count:      1,
		OccurredAt: testNow,
	}, e.Payload)

	// second run finds nothing and stays quiet
	moved, err = svc.MigrateStaleMemories(context.Background(), agentID, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
	assert.Len(t, pub.events, 1)
}

func TestMigrateStaleMemoriesDropsArchivedFromIndex(t *testing.T) {
	fixedClock(t, testNow)
	ms := newMockMemoryStore()
	ix := &recordingIndexer{}
	svc := NewTierService(ms, testLogger())
	svc.SetIndexer(ix)
	agentID := uuid.New()

	stale := addMemory(ms, agentID, 5, 40*day, 0.3, 1)
	addMemory(ms, agentID, 5, 10*day, 0.3, 1)

	moved, err := svc.MigrateStaleMemories(context.Background(), agentID, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, []uuid.UUID{stale.ID}, ix.removed)

	// nothing moves, nothing is dropped
	_, err = svc.MigrateStaleMemories(context.Background(), agentID, 30)
	require.NoError(t, err)
	assert.Len(t, ix.removed, 1)
}

func TestMigrateStaleMemoriesSkipsOtherTiers(t *testing.T) {
	fixedClock(t, testNow)
	ms := newMockMemoryStore()
	agentID := uuid.New()

	w := addMemory(ms, agentID, 5, 90*day, 0.1, 0)
	w.Tier = domain.TierWorking
	require.NoError(t, ms.Create(context.Background(), w))

	moved, err := NewTierService(ms, testLogger()).MigrateStaleMemories(context.Background(), agentID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestMigrateStaleMemoriesValidation(t *testing.T) {
	svc := NewTierService(newMockMemoryStore(), testLogger())
	for _, days := range []int{0, -3} {
		_, err := svc.MigrateStaleMemories(context.Background(), uuid.New(), days)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestMigrateStaleMemoriesStoreFailure(t *testing.T) {
	ms := newMockMemoryStore()
	ms.listErr = errors.New("down")

	_, err := NewTierService(ms, testLogger()).MigrateStaleMemories(context.Background(), uuid.New(), 30)
	assert.ErrorIs(t, err, domain.ErrStore)
}
