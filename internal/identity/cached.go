package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
)

// CachedStore serves ReadIdentityDocuments from a ristretto cache and drops
// the agent's entry on every write. A read that loaded from next while a write
// completed does not populate the cache.
type CachedStore struct {
	next  domain.DocumentStore
	cache *ristretto.Cache[string, *domain.IdentityDocuments]
	ttl   time.Duration

	mu   sync.Mutex
	gens map[uuid.UUID]uint64
}

func NewCachedStore(next domain.DocumentStore, maxAgents int64, ttl time.Duration) (*CachedStore, error) {
	if maxAgents <= 0 {
		maxAgents = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *domain.IdentityDocuments]{
		NumCounters: maxAgents * 10,
		MaxCost:     maxAgents,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity cache: %w", err)
	}
	return &CachedStore{next: next, cache: c, ttl: ttl, gens: make(map[uuid.UUID]uint64)}, nil
}

func (s *CachedStore) Close() {
	s.cache.Close()
}

// wait blocks until buffered cache writes are applied.
func (s *CachedStore) wait() {
	s.cache.Wait()
}

func (s *CachedStore) ReadIdentityDocuments(ctx context.Context, agentID uuid.UUID) (*domain.IdentityDocuments, error) {
	key := agentID.String()
	if docs, ok := s.cache.Get(key); ok {
		return cloneDocuments(docs), nil
	}
	gen := s.generation(agentID)
	docs, err := s.next.ReadIdentityDocuments(ctx, agentID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.gens[agentID] == gen {
		s.cache.SetWithTTL(key, cloneDocuments(docs), 1, s.ttl)
	}
	s.mu.Unlock()
	return docs, nil
}

func (s *CachedStore) WriteIdentityDocument(ctx context.Context, agentID uuid.UUID, kind domain.DocumentKind, text string) (string, error) {
	defer s.invalidate(agentID)
	return s.next.WriteIdentityDocument(ctx, agentID, kind, text)
}

func (s *CachedStore) AppendDriftLogEntry(ctx context.Context, agentID uuid.UUID, entry domain.DriftLogEntry) error {
	defer s.invalidate(agentID)
	return s.next.AppendDriftLogEntry(ctx, agentID, entry)
}

func (s *CachedStore) CommitIdentityDrift(ctx context.Context, agentID uuid.UUID, identity string, entry domain.DriftLogEntry) error {
	defer s.invalidate(agentID)
	return s.next.CommitIdentityDrift(ctx, agentID, identity, entry)
}

func (s *CachedStore) InitializeDocuments(ctx context.Context, agentID uuid.UUID, docs domain.IdentityDocuments) error {
	defer s.invalidate(agentID)
	return s.next.InitializeDocuments(ctx, agentID, docs)
}

func (s *CachedStore) generation(agentID uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[agentID]
}

// invalidate runs after a write reaches next. Bumping the generation under mu
// keeps any load that overlapped the write from caching what it read.
func (s *CachedStore) invalidate(agentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[agentID]++
	s.cache.Del(agentID.String())
}

func cloneDocuments(d *domain.IdentityDocuments) *domain.IdentityDocuments {
	c := *d
	c.DriftLog = append([]domain.DriftLogEntry(nil), d.DriftLog...)
	return &c
}
