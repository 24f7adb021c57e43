package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	GetByHandle(ctx context.Context, handle string) (*Agent, error)
	List(ctx context.Context, f AgentFilter) ([]Agent, error)
	Update(ctx context.Context, a *Agent) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status AgentStatus) error
	// UpdateStatusIf sets status to to only while it is still from. Reports
	// whether the row changed.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to AgentStatus) (bool, error)
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateIdentityEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	FindSimilar(ctx context.Context, id uuid.UUID, embedding []float32, threshold float32, limit int) ([]AgentSimilarity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	List(ctx context.Context, q MemoryQuery) ([]Memory, error)
	// UpdateTier moves the given memories from one tier to another. Rows no
	// longer in the from tier are left alone. Returns rows changed.
	UpdateTier(ctx context.Context, agentID uuid.UUID, ids []uuid.UUID, from, to MemoryTier) (int64, error)
	RecordAccess(ctx context.Context, ids []uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByTier(ctx context.Context, agentID uuid.UUID) (map[MemoryTier]int, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type ReflectionStore interface {
	// Persist writes the reflection, its summary memory and any identity
	// embedding in one transaction. beforeCommit runs inside the transaction
	// after all rows are written; an error from it rolls everything back.
	Persist(ctx context.Context, c ReflectionCommit, beforeCommit func(ctx context.Context) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reflection, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID, opts ReflectionListOpts) ([]Reflection, error)
}

// DocumentStore holds the raw identity documents and the drift log.
type DocumentStore interface {
	ReadIdentityDocuments(ctx context.Context, agentID uuid.UUID) (*IdentityDocuments, error)
	WriteIdentityDocument(ctx context.Context, agentID uuid.UUID, kind DocumentKind, text string) (string, error)
	AppendDriftLogEntry(ctx context.Context, agentID uuid.UUID, entry DriftLogEntry) error
	// CommitIdentityDrift replaces the identity document and appends entry as
	// one unit: either both are visible afterwards or neither is.
	CommitIdentityDrift(ctx context.Context, agentID uuid.UUID, identity string, entry DriftLogEntry) error
	InitializeDocuments(ctx context.Context, agentID uuid.UUID, docs IdentityDocuments) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type SimilaritySearcher interface {
	// SimilaritySearch returns the agent's non-archived memories scoring at
	// least threshold, best first, at most limit.
	SimilaritySearch(ctx context.Context, agentID uuid.UUID, embedding []float32, threshold float32, limit int) ([]MemorySearchResult, error)
}

// MemoryIndexer is implemented by search backends that keep their own copy of
// memory embeddings.
type MemoryIndexer interface {
	Index(ctx context.Context, m Memory) error
	Remove(ctx context.Context, agentID, memoryID uuid.UUID) error
}

type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	JSON        bool
}

type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
