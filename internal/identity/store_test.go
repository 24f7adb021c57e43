package identity

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) domain.DocumentStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func newSQLiteStore(t *testing.T) domain.DocumentStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newCachedFileStore(t *testing.T) domain.DocumentStore {
	t.Helper()
	c, err := NewCachedStore(newFileStore(t), 100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

var backends = map[string]func(t *testing.T) domain.DocumentStore{
	"fs":        newFileStore,
	"sqlite":    newSQLiteStore,
	"cached_fs": newCachedFileStore,
}

func TestDocumentStoreInitializeAndRead(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			agentID := uuid.New()

			require.NoError(t, s.InitializeDocuments(ctx, agentID, DefaultDocuments("Aria", now, Overrides{})))

			docs, err := s.ReadIdentityDocuments(ctx, agentID)
			require.NoError(t, err)
			assert.Contains(t, docs.Lore, "# Aria - Origin")
			assert.Contains(t, docs.Lore, "2026-05-01")
			assert.Contains(t, docs.Soul, "**Continuity**")
			assert.Contains(t, docs.Identity, "I am Aria")
			require.Len(t, docs.DriftLog, 1)
			assert.Equal(t, domain.DriftEventInitialization, docs.DriftLog[0].Event)
			assert.Equal(t, "Agent identity files created", docs.DriftLog[0].Reason)
			assert.True(t, now.Equal(docs.DriftLog[0].Timestamp))
		})
	}
}

func TestDocumentStoreMissingAgent(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			_, err := open(t).ReadIdentityDocuments(context.Background(), uuid.New())
			assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
		})
	}
}

func TestDocumentStoreCommitIdentityDrift(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			agentID := uuid.New()
			require.NoError(t, s.InitializeDocuments(ctx, agentID, DefaultDocuments("Aria", now, Overrides{Identity: "old self"})))

			// warm any cache in front of the store
			_, err := s.ReadIdentityDocuments(ctx, agentID)
			require.NoError(t, err)

			reflectionID := uuid.New()
			newIdentity := strings.Repeat("n", 700)
			delta := domain.NewIdentityDelta("old self", newIdentity, "grew", now.Add(time.Hour))
			delta.ReflectionID = &reflectionID
			entry := domain.DriftLogEntry{ID: NewEntryID(now), Event: domain.DriftEventDrift, IdentityDelta: delta}

			require.NoError(t, s.CommitIdentityDrift(ctx, agentID, newIdentity, entry))
			if c, ok := s.(*CachedStore); ok {
				c.wait()
			}

			docs, err := s.ReadIdentityDocuments(ctx, agentID)
			require.NoError(t, err)
			assert.Equal(t, newIdentity, docs.Identity)
			require.Len(t, docs.DriftLog, 2)

			last := docs.DriftLog[1]
			assert.Equal(t, entry.ID, last.ID)
			assert.Equal(t, "old self", last.Before)
			assert.Equal(t, strings.Repeat("n", 500)+"...", last.After)
			assert.Equal(t, "grew", last.Reason)
			require.NotNil(t, last.ReflectionID)
			assert.Equal(t, reflectionID, *last.ReflectionID)
		})
	}
}

func TestDocumentStoreWriteAndAppend(t *testing.T) {
	now := time.Now().UTC()

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			agentID := uuid.New()
			require.NoError(t, s.InitializeDocuments(ctx, agentID, DefaultDocuments("Bo", now, Overrides{})))

			path, err := s.WriteIdentityDocument(ctx, agentID, domain.DocumentSoul, "new soul")
			require.NoError(t, err)
			assert.NotEmpty(t, path)

			_, err = s.WriteIdentityDocument(ctx, agentID, "diary", "x")
			assert.True(t, errors.Is(err, domain.ErrValidation))

			for i := 0; i < 3; i++ {
				require.NoError(t, s.AppendDriftLogEntry(ctx, agentID, domain.DriftLogEntry{
					ID:            NewEntryID(now.Add(time.Duration(i) * time.Second)),
					Event:         domain.DriftEventDrift,
					IdentityDelta: domain.IdentityDelta{Reason: string(rune('a' + i)), Timestamp: now},
				}))
			}
			if c, ok := s.(*CachedStore); ok {
				c.wait()
			}

			docs, err := s.ReadIdentityDocuments(ctx, agentID)
			require.NoError(t, err)
			assert.Equal(t, "new soul", docs.Soul)
			require.Len(t, docs.DriftLog, 4)
			assert.Equal(t, []string{"a", "b", "c"}, []string{docs.DriftLog[1].Reason, docs.DriftLog[2].Reason, docs.DriftLog[3].Reason})
		})
	}
}

func TestDefaultDocumentsOverrides(t *testing.T) {
	docs := DefaultDocuments("Aria", time.Now(), Overrides{Lore: "custom lore"})
	assert.Equal(t, "custom lore", docs.Lore)
	assert.Contains(t, docs.Soul, "Aria")
	assert.NotEmpty(t, docs.DriftLog[0].ID)
}

// gatedStore holds its first read open after loading until released.
type gatedStore struct {
	domain.DocumentStore
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (g *gatedStore) ReadIdentityDocuments(ctx context.Context, agentID uuid.UUID) (*domain.IdentityDocuments, error) {
	docs, err := g.DocumentStore.ReadIdentityDocuments(ctx, agentID)
	g.once.Do(func() {
		close(g.loaded)
		<-g.release
	})
	return docs, err
}

func TestCachedStoreSlowLoadDoesNotCacheOverWrite(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	inner := newFileStore(t)
	agentID := uuid.New()
	require.NoError(t, inner.InitializeDocuments(ctx, agentID, DefaultDocuments("Aria", now, Overrides{Identity: "old self"})))

	gated := &gatedStore{DocumentStore: inner, loaded: make(chan struct{}), release: make(chan struct{})}
	c, err := NewCachedStore(gated, 100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	done := make(chan *domain.IdentityDocuments, 1)
	go func() {
		docs, err := c.ReadIdentityDocuments(ctx, agentID)
		assert.NoError(t, err)
		done <- docs
	}()
	<-gated.loaded

	delta := domain.NewIdentityDelta("old self", "new self", "grew", now.Add(time.Hour))
	entry := domain.DriftLogEntry{ID: NewEntryID(now), Event: domain.DriftEventDrift, IdentityDelta: delta}
	require.NoError(t, c.CommitIdentityDrift(ctx, agentID, "new self", entry))
	close(gated.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, "old self", stale.Identity)
	c.wait()

	docs, err := c.ReadIdentityDocuments(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, "new self", docs.Identity)
	assert.Len(t, docs.DriftLog, 2)
}
