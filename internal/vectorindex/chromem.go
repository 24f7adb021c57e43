// Package vectorindex keeps an in-process copy of memory embeddings in
// chromem-go so similarity search can run without pgvector.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// MemorySource is the authoritative store the index resolves hits against
// and warms itself from.
type MemorySource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error)
	ListEmbedded(ctx context.Context, agentID uuid.UUID) ([]domain.Memory, error)
}

// DefaultRefreshInterval bounds how long writes made by other processes can
// stay invisible to search.
const DefaultRefreshInterval = time.Minute

var timeNow = time.Now

// Index is a per-agent chromem collection set. A collection is rebuilt from
// the source when it is first queried and again once it is older than the
// refresh interval.
type Index struct {
	db      *chromem.DB
	source  MemorySource
	logger  *zap.Logger
	refresh time.Duration

	mu     sync.Mutex
	warmed map[uuid.UUID]time.Time
}

func New(source MemorySource, logger *zap.Logger) *Index {
	return &Index{
		db:      chromem.NewDB(),
		source:  source,
		logger:  logger,
		refresh: DefaultRefreshInterval,
		warmed:  make(map[uuid.UUID]time.Time),
	}
}

// SetRefreshInterval changes the rebuild period. Zero or less rebuilds on
// every query.
func (ix *Index) SetRefreshInterval(d time.Duration) {
	ix.mu.Lock()
	ix.refresh = d
	ix.mu.Unlock()
}

func collectionName(agentID uuid.UUID) string {
	return "agent_" + agentID.String()
}

func (ix *Index) collection(agentID uuid.UUID) (*chromem.Collection, error) {
	col, err := ix.db.GetOrCreateCollection(collectionName(agentID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return col, nil
}

func document(m domain.Memory) chromem.Document {
	return chromem.Document{
		ID:        m.ID.String(),
		Content:   m.Content,
		Embedding: m.Embedding,
		Metadata: map[string]string{
			"kind": string(m.Kind),
			"tier": string(m.Tier),
		},
	}
}

// Index adds or replaces a memory. Memories without an embedding are skipped.
func (ix *Index) Index(ctx context.Context, m domain.Memory) error {
	if len(m.Embedding) == 0 || m.Tier == domain.TierArchive {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	col, err := ix.collection(m.AgentID)
	if err != nil {
		return err
	}
	if err := col.AddDocument(ctx, document(m)); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (ix *Index) Remove(ctx context.Context, agentID, memoryID uuid.UUID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	col, err := ix.collection(agentID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, memoryID.String()); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// warm (re)builds an agent's collection from the source when it has never
// been loaded or the last load is older than the refresh interval. The
// rebuild drops documents that were archived or deleted elsewhere.
func (ix *Index) warm(ctx context.Context, agentID uuid.UUID) (*chromem.Collection, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	now := timeNow()
	if at, ok := ix.warmed[agentID]; ok && now.Sub(at) < ix.refresh {
		return ix.collection(agentID)
	}

	mems, err := ix.source.ListEmbedded(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list embedded memories: %w", err)
	}
	if err := ix.db.DeleteCollection(collectionName(agentID)); err != nil {
		return nil, fmt.Errorf("reset collection: %w", err)
	}
	col, err := ix.collection(agentID)
	if err != nil {
		return nil, err
	}
	docs := make([]chromem.Document, 0, len(mems))
	for _, m := range mems {
		if len(m.Embedding) > 0 && m.Tier != domain.TierArchive {
			docs = append(docs, document(m))
		}
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("add documents: %w", err)
		}
	}

	ix.warmed[agentID] = now
	ix.logger.Debug("vector index warmed",
		zap.String("agent_id", agentID.String()),
		zap.Int("documents", col.Count()))
	return col, nil
}

// SimilaritySearch queries the agent's collection and resolves hits against
// the memory store, so tier changes made in the store are honored. Hits that
// turn out archived or deleted are dropped from the collection and the scan
// continues, so they never take a slot from an eligible memory.
func (ix *Index) SimilaritySearch(ctx context.Context, agentID uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.MemorySearchResult, error) {
	col, err := ix.warm(ctx, agentID)
	if err != nil {
		return nil, err
	}

	results := make([]domain.MemorySearchResult, 0, limit)
	if limit <= 0 {
		return results, nil
	}

	hits, err := ix.rankAll(ctx, col, embedding)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, h := range hits {
		if len(results) == limit || h.Similarity < threshold {
			break
		}
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		m, err := ix.source.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				stale = append(stale, h.ID)
				continue
			}
			return nil, fmt.Errorf("resolve memory %s: %w", h.ID, err)
		}
		if m.Tier == domain.TierArchive {
			stale = append(stale, h.ID)
			continue
		}
		results = append(results, domain.MemorySearchResult{Memory: *m, Similarity: h.Similarity})
	}

	if len(stale) > 0 {
		if err := col.Delete(ctx, nil, nil, stale...); err != nil {
			ix.logger.Warn("failed to drop stale documents", zap.String("agent_id", agentID.String()), zap.Error(err))
		}
	}
	return results, nil
}

// rankAll orders every document in the collection by similarity. chromem
// rejects nResults larger than the collection, so the count is read under
// the same lock as Index and Remove.
func (ix *Index) rankAll(ctx context.Context, col *chromem.Collection, embedding []float32) ([]chromem.Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	hits, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return hits, nil
}
