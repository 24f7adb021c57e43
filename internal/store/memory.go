package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const memoryColumns = `id, agent_id, content, kind, tier, importance, emotional_valence, source_kind, source_id, expires_at, accessed_at, access_count, created_at`

type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func scanMemory(row pgx.Row, extra ...any) (*domain.Memory, error) {
	m := &domain.Memory{}
	var sourceKind *string
	dest := []any{&m.ID, &m.AgentID, &m.Content, &m.Kind, &m.Tier, &m.Importance, &m.EmotionalValence, &sourceKind, &m.SourceID, &m.ExpiresAt, &m.AccessedAt, &m.AccessCount, &m.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if sourceKind != nil {
		m.SourceKind = *sourceKind
	}
	return m, nil
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	return insertMemory(ctx, s.db, m)
}

func insertMemory(ctx context.Context, q querier, m *domain.Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	var sourceKind *string
	if m.SourceKind != "" {
		sourceKind = &m.SourceKind
	}
	return q.QueryRow(ctx,
		`INSERT INTO memories (id, agent_id, content, kind, tier, importance, emotional_valence, embedding, source_kind, source_id, expires_at, accessed_at, access_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), 0)
		 RETURNING created_at, accessed_at, access_count`,
		m.ID, m.AgentID, m.Content, m.Kind, m.Tier, m.Importance, m.EmotionalValence, vectorOrNil(m.Embedding), sourceKind, m.SourceID, m.ExpiresAt,
	).Scan(&m.CreatedAt, &m.AccessedAt, &m.AccessCount)
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m, err := scanMemory(s.db.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) List(ctx context.Context, q domain.MemoryQuery) ([]domain.Memory, error) {
	query, args := buildMemoryQuery(q)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

// buildMemoryQuery renders q as a parameterised SELECT.
func buildMemoryQuery(q domain.MemoryQuery) (string, []any) {
	conditions, args := memoryConditions(q.Filter)

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE ` + strings.Join(conditions, " AND ")

	switch q.Order {
	case domain.OrderImportanceAsc:
		query += " ORDER BY importance ASC, created_at DESC"
	case domain.OrderAccessCountAsc:
		query += " ORDER BY access_count ASC, created_at DESC"
	default:
		query += " ORDER BY created_at DESC"
	}

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, q.Offset)
	}
	return query, args
}

func memoryConditions(f domain.MemoryFilter) ([]string, []any) {
	var conditions []string
	var args []any

	add := func(expr string, v any) {
		conditions = append(conditions, fmt.Sprintf(expr, len(args)+1))
		args = append(args, v)
	}

	add("agent_id = $%d", f.AgentID)
	if f.Tier != nil {
		add("tier = $%d", string(*f.Tier))
	}
	if f.ExcludeTier != nil {
		add("tier <> $%d", string(*f.ExcludeTier))
	}
	if f.Kind != nil {
		add("kind = $%d", string(*f.Kind))
	}
	if f.ExcludeKind != nil {
		add("kind <> $%d", string(*f.ExcludeKind))
	}
	if f.CreatedSince != nil {
		add("created_at >= $%d", *f.CreatedSince)
	}
	if f.CreatedBefore != nil {
		add("created_at < $%d", *f.CreatedBefore)
	}
	if f.ImportanceAtLeast != nil {
		add("importance >= $%d", *f.ImportanceAtLeast)
	}
	if f.ImportanceBelow != nil {
		add("importance < $%d", *f.ImportanceBelow)
	}
	if f.AccessCountAtLeast != nil {
		add("access_count >= $%d", *f.AccessCountAtLeast)
	}
	if f.AccessCountBelow != nil {
		add("access_count < $%d", *f.AccessCountBelow)
	}
	return conditions, args
}

func (s *MemoryStore) UpdateTier(ctx context.Context, agentID uuid.UUID, ids []uuid.UUID, from, to domain.MemoryTier) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE memories SET tier = $4
		 WHERE agent_id = $1 AND id = ANY($2) AND tier = $3`,
		agentID, ids, from, to,
	)
	if err != nil {
		return 0, fmt.Errorf("update tier: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *MemoryStore) RecordAccess(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE memories
		 SET access_count = access_count + 1,
		     accessed_at = $2
		 WHERE id = ANY($1)`,
		ids, at,
	)
	return err
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) CountByTier(ctx context.Context, agentID uuid.UUID) (map[domain.MemoryTier]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tier, COUNT(*) FROM memories WHERE agent_id = $1 GROUP BY tier`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.MemoryTier]int)
	for rows.Next() {
		var tier domain.MemoryTier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SimilaritySearch ranks the agent's non-archived memories by cosine
// similarity to embedding.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, agentID uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.MemorySearchResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+`, 1 - (embedding <=> $2) AS similarity
		 FROM memories
		 WHERE agent_id = $1
		   AND tier <> $5
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $2) >= $3
		 ORDER BY embedding <=> $2
		 LIMIT $4`,
		agentID, pgvector.NewVector(embedding), threshold, limit, domain.TierArchive,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []domain.MemorySearchResult
	for rows.Next() {
		var sim float32
		m, err := scanMemory(rows, &sim)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, domain.MemorySearchResult{Memory: *m, Similarity: sim})
	}
	return results, rows.Err()
}

// ListEmbedded returns every non-archived memory of the agent together with
// its embedding. Used to warm in-process indexes.
func (s *MemoryStore) ListEmbedded(ctx context.Context, agentID uuid.UUID) ([]domain.Memory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+memoryColumns+`, embedding
		 FROM memories
		 WHERE agent_id = $1 AND tier <> $2 AND embedding IS NOT NULL`,
		agentID, domain.TierArchive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []domain.Memory
	for rows.Next() {
		var emb pgvector.Vector
		m, err := scanMemory(rows, &emb)
		if err != nil {
			return nil, err
		}
		m.Embedding = emb.Slice()
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}
